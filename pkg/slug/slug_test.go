package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Free Gift", "free-gift"},
		{"  FREE-GIFT!! ", "free-gift"},
		{"Crème Brûlée", "creme-brulee"},
		{"Oud & Musk -- 100ml", "oud-musk-100ml"},
		{"عطر العود", "عطر-العود"},
		{"", ""},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, Generate(tc.in))
		})
	}
}
