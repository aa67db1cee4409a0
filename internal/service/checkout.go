package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/event"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/gateway"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/repository"
	apperrors "github.com/muhsiltomsher-cloud/asl-storefront/pkg/errors"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/validator"
)

// GatewayResolver finds the payment gateway for an order.
type GatewayResolver interface {
	Get(name domain.Gateway) (gateway.Gateway, error)
	ForMethod(paymentMethod string) (gateway.Gateway, bool, error)
}

// CheckoutCart is the cart access checkout needs.
type CheckoutCart interface {
	Get(ctx context.Context, ref domain.CartRef) (*domain.CartView, error)
	Clear(ctx context.Context, ref domain.CartRef) (*domain.CartView, error)
	RemoveCoupon(ctx context.Context, ref domain.CartRef, code string) (*domain.CartView, error)
}

// BundlePricing returns the enabled configuration of a bundle product, or nil.
type BundlePricing interface {
	PricingFor(ctx context.Context, productID int) (*domain.BundleConfiguration, error)
}

// VerifyRequest identifies a payment coming back from a hosted gateway.
type VerifyRequest struct {
	OrderID    int    `json:"order_id" validate:"required,gt=0"`
	OrderKey   string `json:"order_key" validate:"required"`
	PaymentRef string `json:"payment_ref,omitempty"`
}

// RetryRequest re-initiates payment of an unpaid order.
type RetryRequest struct {
	OrderID  int    `json:"order_id" validate:"required,gt=0"`
	OrderKey string `json:"order_key" validate:"required"`
}

// OrderChange is what the storefront may change on its own order.
type OrderChange struct {
	OrderID  int           `json:"order_id" validate:"required,gt=0"`
	OrderKey string        `json:"order_key" validate:"required"`
	Status   string        `json:"status,omitempty" validate:"omitempty,oneof=cancelled failed"`
	Meta     []domain.Meta `json:"meta_data,omitempty"`
}

type emailCheck struct {
	Email string `json:"email" validate:"required,email"`
}

// CheckoutConfig holds checkout settings.
type CheckoutConfig struct {
	StorefrontURL  string
	GatewayTimeout time.Duration
	ClearTimeout   time.Duration
}

// CheckoutService places orders and drives gateway payments.
type CheckoutService struct {
	carts      CheckoutCart
	orders     OrderBackend
	bundles    BundlePricing
	gateways   GatewayResolver
	attempts   repository.PaymentAttemptRepository
	events     EventPublisher
	currencies CurrencyResolver
	cfg        CheckoutConfig
	logger     *slog.Logger
	now        func() time.Time

	wg sync.WaitGroup
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	carts CheckoutCart,
	orders OrderBackend,
	bundles BundlePricing,
	gateways GatewayResolver,
	attempts repository.PaymentAttemptRepository,
	events EventPublisher,
	currencies CurrencyResolver,
	cfg CheckoutConfig,
	logger *slog.Logger,
) *CheckoutService {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 30 * time.Second
	}
	if cfg.ClearTimeout <= 0 {
		cfg.ClearTimeout = 20 * time.Second
	}
	cfg.StorefrontURL = strings.TrimRight(cfg.StorefrontURL, "/")
	return &CheckoutService{
		carts:      carts,
		orders:     orders,
		bundles:    bundles,
		gateways:   gateways,
		attempts:   attempts,
		events:     events,
		currencies: currencies,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Wait blocks until background cart clears have finished.
func (s *CheckoutService) Wait() {
	s.wg.Wait()
}

// PlaceOrder turns the cart into an order. Hosted gateways return a redirect
// URL; cash on delivery returns a confirmation URL and clears the cart in the
// background.
func (s *CheckoutService) PlaceOrder(ctx context.Context, ref domain.CartRef, customerID int, req domain.CheckoutRequest) (*domain.PaymentResult, error) {
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	if !req.SameAsShipping && req.Billing != nil {
		if err := validator.Validate(req.Billing); err != nil {
			return nil, err
		}
	}

	gw, hosted, err := s.gateways.ForMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	view, err := s.carts.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(view.Items) == 0 {
		return nil, apperrors.InvalidInput("cart is empty")
	}

	if customerID == 0 && req.CreateAccount {
		customerID, err = s.createCustomer(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	code := ref.Currency
	if code == "" {
		code = view.Currency.Code
	}
	dc := s.currencies.DisplayCurrency(code)
	if strings.EqualFold(view.Currency.Code, dc.Code) {
		dc.Rate = 1
	}

	cart, err := s.priceBundles(ctx, &view.Cart)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.CreateOrder(ctx, domain.BuildOrderPayload(cart, req, customerID, dc))
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	log := s.logger.With(slog.Int("order_id", order.ID), slog.String("payment_method", order.PaymentMethod))

	if req.ExpectedTotal > 0 && domain.TotalsDiffer(req.ExpectedTotal, order.Total) {
		log.WarnContext(ctx, "order total differs from checkout total",
			slog.Float64("expected", req.ExpectedTotal),
			slog.Float64("actual", order.Total),
		)
	}
	if err := s.events.PublishOrderCreated(ctx, order, view.Key); err != nil {
		log.ErrorContext(ctx, "failed to publish order.created event", slog.String("error", err.Error()))
	}

	if !hosted {
		s.recordAttempt(ctx, domain.NewPaymentAttempt(order, view.Key, domain.GatewayDirect, s.now().UTC()))
		s.clearAfterOrder(ctx, domain.CartRef{Key: view.Key, Currency: ref.Currency, Locale: ref.Locale}, view.Coupons)
		log.InfoContext(ctx, "order placed")
		return &domain.PaymentResult{
			OrderID:         order.ID,
			OrderKey:        order.OrderKey,
			Status:          order.Status,
			Total:           order.Total,
			Currency:        order.Currency,
			Gateway:         domain.GatewayDirect,
			ConfirmationURL: s.confirmationURL(order),
		}, nil
	}

	return s.initiate(ctx, gw, order, view.Key, ref.Locale)
}

// priceBundles returns a copy of cart whose bundle lines carry the pricing of
// the saved bundle configuration instead of whatever the line recorded.
func (s *CheckoutService) priceBundles(ctx context.Context, cart *domain.Cart) (*domain.Cart, error) {
	out := *cart
	out.Items = make([]domain.CartItem, len(cart.Items))
	copy(out.Items, cart.Items)

	configs := make(map[int]*domain.BundleConfiguration)
	for i, it := range out.Items {
		if !it.Data.IsBundle() {
			continue
		}
		cfg, ok := configs[it.ProductID]
		if !ok {
			var err error
			cfg, err = s.bundles.PricingFor(ctx, it.ProductID)
			if err != nil {
				return nil, fmt.Errorf("get bundle pricing: %w", err)
			}
			configs[it.ProductID] = cfg
		}
		out.Items[i].Data = it.Data.WithBundlePricing(cfg)
	}
	return &out, nil
}

func (s *CheckoutService) createCustomer(ctx context.Context, req domain.CheckoutRequest) (int, error) {
	exists, err := s.orders.CustomerExists(ctx, req.Email)
	if err != nil {
		return 0, fmt.Errorf("check customer: %w", err)
	}
	if exists {
		return 0, apperrors.AlreadyExists("customer", "email", req.Email)
	}
	id, err := s.orders.CreateCustomer(ctx, domain.NewCustomer{
		Email:     req.Email,
		FirstName: req.Shipping.FirstName,
		LastName:  req.Shipping.LastName,
		Password:  req.Password,
		Billing:   req.BillingAddress(),
		Shipping:  req.Shipping,
	})
	if err != nil {
		return 0, fmt.Errorf("create customer: %w", err)
	}
	return id, nil
}

func (s *CheckoutService) confirmationURL(order *domain.Order) string {
	q := url.Values{}
	q.Set("order_id", strconv.Itoa(order.ID))
	q.Set("order_key", order.OrderKey)
	return s.cfg.StorefrontURL + "/order-confirmation?" + q.Encode()
}

// clearAfterOrder removes coupons and items from the cart without holding up
// the response. Failures are logged only.
func (s *CheckoutService) clearAfterOrder(ctx context.Context, ref domain.CartRef, coupons []domain.AppliedCoupon) {
	if ref.Key == "" {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ClearTimeout)
		defer cancel()

		for _, c := range coupons {
			if _, err := s.carts.RemoveCoupon(ctx, ref, c.Code); err != nil {
				s.logger.WarnContext(ctx, "coupon removal after order failed", slog.String("code", c.Code), slog.String("error", err.Error()))
			}
		}
		if _, err := s.carts.Clear(ctx, ref); err != nil {
			s.logger.WarnContext(ctx, "cart clear after order failed", slog.String("cart_key", ref.Key), slog.String("error", err.Error()))
		}
	}()
}

func (s *CheckoutService) recordAttempt(ctx context.Context, a *domain.PaymentAttempt) {
	if err := s.attempts.Create(ctx, a); err != nil {
		s.logger.ErrorContext(ctx, "failed to record payment attempt",
			slog.Int("order_id", a.OrderID),
			slog.String("error", err.Error()),
		)
	}
}

// initiate hands the order to gw. A rejected hand-off is recorded and
// reported as payment_failed so the shopper can retry.
func (s *CheckoutService) initiate(ctx context.Context, gw gateway.Gateway, order *domain.Order, cartKey, locale string) (*domain.PaymentResult, error) {
	attempt := domain.NewPaymentAttempt(order, cartKey, gw.Name(), s.now().UTC())
	result := &domain.PaymentResult{
		OrderID:   order.ID,
		OrderKey:  order.OrderKey,
		Status:    order.Status,
		Total:     order.Total,
		Currency:  order.Currency,
		Gateway:   gw.Name(),
		AttemptID: attempt.ID,
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	init, err := gw.Initiate(gctx, gateway.InitiateRequest{
		Order:  order,
		Locale: locale,
		URLs:   gateway.NewCallbackURLs(s.cfg.StorefrontURL, gw.Name(), order),
	})
	if err != nil {
		attempt.Status = domain.AttemptFailed
		attempt.FailureReason = err.Error()
		s.recordAttempt(ctx, attempt)
		s.logger.WarnContext(ctx, "payment initiation failed",
			slog.Int("order_id", order.ID),
			slog.String("gateway", string(gw.Name())),
			slog.String("error", err.Error()),
		)
		result.Status = domain.PaymentStateFailed
		return result, nil
	}

	attempt.ProviderRef = init.ProviderRef
	attempt.RedirectURL = init.RedirectURL
	s.recordAttempt(ctx, attempt)
	result.RedirectURL = init.RedirectURL
	return result, nil
}

// order loads an order and checks its key.
func (s *CheckoutService) order(ctx context.Context, id int, key string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.OrderKey != key {
		return nil, apperrors.NotFound("order", strconv.Itoa(id))
	}
	return order, nil
}

// GetOrder returns an order when key matches.
func (s *CheckoutService) GetOrder(ctx context.Context, id int, key string) (*domain.Order, error) {
	return s.order(ctx, id, key)
}

// UpdateOrder applies a shopper-side change to an unpaid order.
func (s *CheckoutService) UpdateOrder(ctx context.Context, in OrderChange) (*domain.Order, error) {
	if err := validator.Validate(in); err != nil {
		return nil, err
	}
	order, err := s.order(ctx, in.OrderID, in.OrderKey)
	if err != nil {
		return nil, err
	}
	if in.Status != "" && order.Status != domain.OrderPending && order.Status != domain.OrderFailed {
		return nil, apperrors.Conflict("order is no longer awaiting payment")
	}
	updated, err := s.orders.UpdateOrder(ctx, order.ID, domain.OrderUpdate{Status: in.Status, MetaData: in.Meta})
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	return updated, nil
}

// VerifyPayment confirms a hosted-gateway payment with the provider and
// marks the order paid or failed. A paid verdict counts only when the
// provider's order reference, amount and currency match this order.
func (s *CheckoutService) VerifyPayment(ctx context.Context, ref domain.CartRef, req VerifyRequest) (*domain.VerifyResult, error) {
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	order, err := s.order(ctx, req.OrderID, req.OrderKey)
	if err != nil {
		return nil, err
	}
	name := domain.GatewayFor(order.PaymentMethod)
	if name == domain.GatewayDirect {
		return nil, apperrors.InvalidInput("order does not use a hosted gateway")
	}
	gw, err := s.gateways.Get(name)
	if err != nil {
		return nil, err
	}

	attempt, err := s.attempts.LatestForOrder(ctx, order.ID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("get payment attempt: %w", err)
		}
		attempt = nil
	}

	providerRef := req.PaymentRef
	if providerRef == "" && attempt != nil {
		providerRef = attempt.ProviderRef
	}
	if providerRef == "" {
		return nil, apperrors.InvalidInput("payment reference is required")
	}

	if order.Status == domain.OrderProcessing || order.Status == "completed" {
		return &domain.VerifyResult{OrderID: order.ID, State: domain.PaymentStatePaid}, nil
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	v, err := gw.Verify(gctx, providerRef)
	if err != nil {
		return nil, fmt.Errorf("verify payment: %w", err)
	}

	log := s.logger.With(slog.Int("order_id", order.ID), slog.String("gateway", string(name)))
	if v.Paid {
		if err := v.CheckOrder(order); err != nil {
			log.WarnContext(ctx, "verified payment does not match order",
				slog.String("payment_ref", providerRef),
				slog.String("provider_order_ref", v.OrderReference),
				slog.Float64("provider_amount", v.Amount),
				slog.String("provider_currency", v.Currency),
			)
			return nil, err
		}
	}
	if !v.Paid {
		if _, err := s.orders.UpdateOrder(ctx, order.ID, domain.OrderUpdate{Status: domain.OrderFailed}); err != nil {
			log.WarnContext(ctx, "failed to mark order failed", slog.String("error", err.Error()))
		}
		s.updateAttempt(ctx, attempt, domain.AttemptFailed, v.Reason)
		log.InfoContext(ctx, "payment not completed", slog.String("status", v.Status), slog.String("reason", v.Reason))
		return &domain.VerifyResult{
			OrderID:        order.ID,
			State:          domain.PaymentStateFailed,
			Message:        v.Reason,
			RetryAvailable: true,
		}, nil
	}

	if _, err := s.orders.UpdateOrder(ctx, order.ID, domain.OrderUpdate{
		Status:        domain.OrderProcessing,
		SetPaid:       true,
		TransactionID: v.TransactionID,
	}); err != nil {
		return nil, fmt.Errorf("mark order paid: %w", err)
	}
	s.updateAttempt(ctx, attempt, domain.AttemptSucceeded, "")

	data := event.PaymentVerifiedData{OrderID: order.ID, CartKey: ref.Key, Gateway: string(name), TransactionID: v.TransactionID}
	if attempt != nil {
		data.AttemptID = attempt.ID
		if attempt.CartKey != "" {
			data.CartKey = attempt.CartKey
		}
	}
	if err := s.events.PublishPaymentVerified(ctx, data); err != nil {
		log.ErrorContext(ctx, "failed to publish payment.verified event", slog.String("error", err.Error()))
	}
	log.InfoContext(ctx, "payment verified", slog.String("transaction_id", v.TransactionID))
	return &domain.VerifyResult{OrderID: order.ID, State: domain.PaymentStatePaid, TransactionID: v.TransactionID}, nil
}

func (s *CheckoutService) updateAttempt(ctx context.Context, a *domain.PaymentAttempt, status, reason string) {
	if a == nil {
		return
	}
	if err := s.attempts.UpdateStatus(ctx, a.ID, status, reason); err != nil {
		s.logger.WarnContext(ctx, "failed to update payment attempt", slog.String("attempt_id", a.ID), slog.String("error", err.Error()))
	}
}

// RetryPayment starts a new gateway hand-off for an unpaid order.
func (s *CheckoutService) RetryPayment(ctx context.Context, ref domain.CartRef, req RetryRequest) (*domain.PaymentResult, error) {
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	order, err := s.order(ctx, req.OrderID, req.OrderKey)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderPending && order.Status != domain.OrderFailed {
		return nil, apperrors.Conflict("order is no longer awaiting payment")
	}
	gw, hosted, err := s.gateways.ForMethod(order.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if !hosted {
		return nil, apperrors.InvalidInput("order does not use a hosted gateway")
	}

	if order.Status == domain.OrderFailed {
		updated, err := s.orders.UpdateOrder(ctx, order.ID, domain.OrderUpdate{Status: domain.OrderPending})
		if err != nil {
			return nil, fmt.Errorf("reopen order: %w", err)
		}
		order = updated
	}
	return s.initiate(ctx, gw, order, ref.Key, ref.Locale)
}

// CheckEmail reports whether an account already uses email.
func (s *CheckoutService) CheckEmail(ctx context.Context, email string) (bool, error) {
	if err := validator.Validate(emailCheck{Email: email}); err != nil {
		return false, err
	}
	exists, err := s.orders.CustomerExists(ctx, email)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

// PaymentGateways lists enabled payment methods this storefront can serve.
func (s *CheckoutService) PaymentGateways(ctx context.Context) ([]domain.PaymentGateway, error) {
	all, err := s.orders.PaymentGateways(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payment gateways: %w", err)
	}
	out := make([]domain.PaymentGateway, 0, len(all))
	for _, g := range all {
		if _, _, err := s.gateways.ForMethod(g.ID); err != nil {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}
