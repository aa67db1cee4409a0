// Package slug normalizes product and category names into WooCommerce-style slugs.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var separators = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Generate lowercases name, strips Latin diacritics and joins runs of letters
// and digits with single hyphens. Letters of other scripts (Arabic names)
// are kept as-is.
//
//	"Free Gift!"       -> "free-gift"
//	"Crème  Brûlée"    -> "creme-brulee"
//	"عطر العود"        -> "عطر-العود"
func Generate(name string) string {
	decomposed := norm.NFD.String(strings.ToLower(strings.TrimSpace(name)))

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) && r < 0x0600 {
			continue
		}
		b.WriteRune(r)
	}

	out := separators.ReplaceAllString(norm.NFC.String(b.String()), "-")
	return strings.Trim(out, "-")
}
