package gateway

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
)

// Mock stands in for a hosted gateway in development. It redirects straight
// to the success URL; references beginning with "mock_fail" verify as failed.
// Like a real provider it remembers which order each payment was opened for.
type Mock struct {
	name domain.Gateway

	mu       sync.Mutex
	payments map[string]domain.Order
}

// NewMock creates a mock registered under name.
func NewMock(name domain.Gateway) *Mock {
	return &Mock{name: name, payments: make(map[string]domain.Order)}
}

// Name implements Gateway.
func (m *Mock) Name() domain.Gateway { return m.name }

// Initiate implements Gateway.
func (m *Mock) Initiate(_ context.Context, req InitiateRequest) (*Initiation, error) {
	ref := "mock_pay_" + uuid.NewString()
	m.mu.Lock()
	m.payments[ref] = domain.Order{ID: req.Order.ID, Total: req.Order.Total, Currency: req.Order.Currency}
	m.mu.Unlock()

	sep := "&"
	if !strings.Contains(req.URLs.Success, "?") {
		sep = "?"
	}
	return &Initiation{ProviderRef: ref, RedirectURL: req.URLs.Success + sep + "paymentId=" + ref}, nil
}

// Verify implements Gateway.
func (m *Mock) Verify(_ context.Context, ref string) (*Verification, error) {
	if strings.HasPrefix(ref, "mock_fail") {
		return &Verification{Status: "failed", Reason: "mock payment declined"}, nil
	}
	m.mu.Lock()
	o, ok := m.payments[ref]
	m.mu.Unlock()
	if !ok {
		return &Verification{Status: "not_found", Reason: "unknown mock payment"}, nil
	}
	return &Verification{
		Paid:           true,
		Status:         "paid",
		TransactionID:  ref,
		OrderReference: strconv.Itoa(o.ID),
		Amount:         o.Total,
		Currency:       o.Currency,
	}, nil
}
