package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/event"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/repository"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/woocommerce"
	apperrors "github.com/muhsiltomsher-cloud/asl-storefront/pkg/errors"
)

// GiftCarts is the cart access a gift pass needs.
type GiftCarts interface {
	Get(ctx context.Context, ref domain.CartRef) (*domain.CartView, error)
	WithLock(ctx context.Context, ref domain.CartRef, fn func(ctx context.Context) (*domain.Cart, error)) (*domain.Cart, error)
}

// GiftConfig tunes scheduling of gift passes.
type GiftConfig struct {
	Debounce time.Duration
	Timeout  time.Duration
}

// Reasons a pass was skipped.
const (
	SkipNoCart    = "no_cart"
	SkipInFlight  = "in_flight"
	SkipUnchanged = "unchanged"
)

// ReconcileResult summarizes one gift pass.
type ReconcileResult struct {
	Skipped  bool                `json:"skipped"`
	Reason   string              `json:"reason,omitempty"`
	Added    []string            `json:"added,omitempty"`
	Removed  []string            `json:"removed,omitempty"`
	Fixed    []string            `json:"fixed,omitempty"`
	Failed   int                 `json:"failed,omitempty"`
	Cart     *domain.CartView    `json:"cart,omitempty"`
	Progress domain.GiftProgress `json:"progress"`
}

type giftTimer struct {
	timer *time.Timer
	gen   uint64
}

// FreeGiftService keeps gift lines in each cart consistent with the active
// rules. Passes are debounced per cart and never overlap for one cart.
type FreeGiftService struct {
	backend CartBackend
	source  RulesSource
	rules   repository.RulesCache
	state   repository.GiftStateRepository
	carts   GiftCarts
	events  EventPublisher
	logger  *slog.Logger
	cfg     GiftConfig

	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	timers  map[string]giftTimer
	gen     uint64
	stopped bool
	wg      sync.WaitGroup
}

// NewFreeGiftService creates a new free-gift service.
func NewFreeGiftService(
	backend CartBackend,
	source RulesSource,
	rules repository.RulesCache,
	state repository.GiftStateRepository,
	carts GiftCarts,
	events EventPublisher,
	cfg GiftConfig,
	logger *slog.Logger,
) *FreeGiftService {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &FreeGiftService{
		backend: backend,
		source:  source,
		rules:   rules,
		state:   state,
		carts:   carts,
		events:  events,
		logger:  logger,
		cfg:     cfg,
		baseCtx: ctx,
		cancel:  cancel,
		timers:  make(map[string]giftTimer),
	}
}

// Rules returns the rules for currency and locale through the TTL cache.
func (s *FreeGiftService) Rules(ctx context.Context, currency, locale string) ([]domain.FreeGiftRule, error) {
	currency = strings.ToUpper(currency)
	cached, err := s.rules.Get(ctx, currency, locale)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		s.logger.WarnContext(ctx, "gift rules cache read failed", slog.String("error", err.Error()))
	}

	rules, err := s.source.FreeGiftRules(ctx, currency, locale)
	if err != nil {
		return nil, fmt.Errorf("fetch gift rules: %w", err)
	}
	if rules == nil {
		rules = []domain.FreeGiftRule{}
	}
	if err := s.rules.Set(ctx, currency, locale, rules); err != nil {
		s.logger.WarnContext(ctx, "gift rules cache write failed", slog.String("error", err.Error()))
	}
	return rules, nil
}

// InvalidateRules drops every cached rule set.
func (s *FreeGiftService) InvalidateRules(ctx context.Context) error {
	if err := s.rules.Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidate gift rules: %w", err)
	}
	return nil
}

// Progress reports the next gift the cart can unlock.
func (s *FreeGiftService) Progress(ctx context.Context, ref domain.CartRef) (domain.GiftProgress, error) {
	view, err := s.carts.Get(ctx, ref)
	if err != nil {
		return domain.GiftProgress{}, err
	}
	return s.progressFor(ctx, ref, view)
}

func (s *FreeGiftService) progressFor(ctx context.Context, ref domain.CartRef, view *domain.CartView) (domain.GiftProgress, error) {
	currency := currencyOf(ref, &view.Cart)
	rules, err := s.Rules(ctx, currency, ref.Locale)
	if err != nil {
		return domain.GiftProgress{}, err
	}
	gifts := domain.FindGiftLines(view.Items, rules, ref.Locale)
	sub := domain.SubtotalWithoutGifts(view.AdjustedTotals.Subtotal, gifts)
	return domain.Progress(rules, currency, view.Currency.ToMajor(sub)), nil
}

func currencyOf(ref domain.CartRef, cart *domain.Cart) string {
	if cart.Currency.Code != "" {
		return strings.ToUpper(cart.Currency.Code)
	}
	return strings.ToUpper(ref.Currency)
}

// Reconcile runs one gift pass for the cart. A pass is skipped when another
// is in flight for the cart or when the cart state hash matches the last
// completed pass. The hash covers gift lines and their quantities, so a gift
// bumped after a completed pass is corrected on the next one. Individual
// fix, add and remove failures are logged and counted without failing the
// pass. A pass with failures records no hash at all, not even a partial one:
// the same cart state is retried on the next trigger instead of being
// treated as settled. After a pass that changed the cart, the hash of the
// resulting cart is recorded.
func (s *FreeGiftService) Reconcile(ctx context.Context, ref domain.CartRef) (*ReconcileResult, error) {
	if ref.Key == "" {
		return &ReconcileResult{Skipped: true, Reason: SkipNoCart}, nil
	}

	acquired, err := s.state.TryLock(ctx, ref.Key, s.cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("claim gift pass: %w", err)
	}
	if !acquired {
		return &ReconcileResult{Skipped: true, Reason: SkipInFlight}, nil
	}
	defer func() {
		if err := s.state.Unlock(context.WithoutCancel(ctx), ref.Key); err != nil {
			s.logger.WarnContext(ctx, "gift pass unlock failed", slog.String("cart_key", ref.Key), slog.String("error", err.Error()))
		}
	}()

	result := &ReconcileResult{}
	var rules []domain.FreeGiftRule
	var added, removed []event.FreeGiftData

	cart, err := s.carts.WithLock(ctx, ref, func(ctx context.Context) (*domain.Cart, error) {
		cart, err := s.backend.GetCart(ctx, ref)
		if err != nil {
			return nil, err
		}
		currency := currencyOf(ref, cart)
		rules, err = s.Rules(ctx, currency, ref.Locale)
		if err != nil {
			return nil, err
		}

		gifts, sub := giftState(cart, rules, ref.Locale)
		hash := domain.CartStateHash(currency, sub, cart.Items, gifts)

		prev, err := s.state.ProcessedHash(ctx, ref.Key)
		if err != nil {
			s.logger.WarnContext(ctx, "gift state read failed", slog.String("cart_key", ref.Key), slog.String("error", err.Error()))
		}
		if prev == hash {
			result.Skipped = true
			result.Reason = SkipUnchanged
			return cart, nil
		}

		matching := domain.MatchingRules(rules, currency, cart.Currency.ToMajor(sub))
		plan := domain.ReconcileGifts(gifts, matching)
		cart, added, removed = s.apply(ctx, ref, cart, plan, rules, currency, result)

		if result.Failed > 0 {
			return cart, nil
		}
		if len(added)+len(removed)+len(result.Fixed) > 0 {
			gifts, sub := giftState(cart, rules, ref.Locale)
			hash = domain.CartStateHash(currency, sub, cart.Items, gifts)
		}
		if err := s.state.SetProcessedHash(ctx, ref.Key, hash); err != nil {
			s.logger.WarnContext(ctx, "gift state write failed", slog.String("cart_key", ref.Key), slog.String("error", err.Error()))
		}
		return cart, nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile gifts: %w", err)
	}

	for _, d := range added {
		if err := s.events.PublishFreeGiftAdded(ctx, d); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish free_gift_added event", slog.String("error", err.Error()))
		}
	}
	for _, d := range removed {
		if err := s.events.PublishFreeGiftRemoved(ctx, d); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish free_gift_removed event", slog.String("error", err.Error()))
		}
	}

	result.Cart = domain.NewCartView(cart)
	currency := currencyOf(ref, cart)
	_, sub := giftState(cart, rules, ref.Locale)
	result.Progress = domain.Progress(rules, currency, cart.Currency.ToMajor(sub))
	return result, nil
}

// giftState returns the gift lines of cart and its adjusted subtotal without them.
func giftState(cart *domain.Cart, rules []domain.FreeGiftRule, locale string) ([]domain.GiftLine, int64) {
	view := domain.NewCartView(cart)
	gifts := domain.FindGiftLines(cart.Items, rules, locale)
	return gifts, domain.SubtotalWithoutGifts(view.AdjustedTotals.Subtotal, gifts)
}

func (s *FreeGiftService) apply(
	ctx context.Context,
	ref domain.CartRef,
	cart *domain.Cart,
	plan domain.GiftPlan,
	rules []domain.FreeGiftRule,
	currency string,
	result *ReconcileResult,
) (*domain.Cart, []event.FreeGiftData, []event.FreeGiftData) {
	if plan.Empty() {
		return cart, nil, nil
	}

	byID := make(map[string]domain.FreeGiftRule, len(rules))
	for _, r := range rules {
		byID[r.ID] = r
	}
	giftData := func(ruleID string, productID int) event.FreeGiftData {
		d := event.FreeGiftData{CartKey: ref.Key, RuleID: ruleID, ProductID: productID, Currency: currency, Locale: ref.Locale}
		if r, ok := byID[ruleID]; ok {
			d.GiftName = r.DisplayName(ref.Locale)
		}
		return d
	}
	log := s.logger.With(slog.String("cart_key", ref.Key))

	var added, removed []event.FreeGiftData
	for _, g := range plan.FixQuantity {
		next, err := s.backend.UpdateItem(ctx, ref, g.ItemKey, 1)
		if err != nil {
			result.Failed++
			log.WarnContext(ctx, "gift quantity fix failed", slog.String("item_key", g.ItemKey), slog.String("error", err.Error()))
			continue
		}
		cart = next
		result.Fixed = append(result.Fixed, g.ItemKey)
	}

	for _, g := range plan.ToRemove {
		next, err := s.backend.RemoveItem(ctx, ref, g.ItemKey)
		if err != nil {
			result.Failed++
			log.WarnContext(ctx, "gift removal failed", slog.String("item_key", g.ItemKey), slog.String("error", err.Error()))
			continue
		}
		cart = next
		result.Removed = append(result.Removed, g.ItemKey)
		removed = append(removed, giftData(g.RuleID, g.ProductID))
	}

	for _, r := range plan.ToAdd {
		productID := domain.RuleProductID(r, ref.Locale)
		next, err := s.backend.AddItem(ctx, ref, woocommerce.AddItemRequest{
			ProductID: productID,
			Quantity:  1,
			ItemData: map[string]any{
				"_asl_free_gift":            "1",
				"_asl_free_gift_rule_id":    r.ID,
				"_asl_free_gift_unique_key": uuid.NewString(),
			},
		})
		if err != nil {
			result.Failed++
			log.WarnContext(ctx, "gift add failed",
				slog.String("rule_id", r.ID),
				slog.Int("product_id", productID),
				slog.String("error", err.Error()),
			)
			continue
		}
		cart = next
		result.Added = append(result.Added, r.ID)
		added = append(added, giftData(r.ID, productID))
	}

	log.InfoContext(ctx, "gift pass applied",
		slog.Int("added", len(result.Added)),
		slog.Int("removed", len(result.Removed)),
		slog.Int("fixed", len(result.Fixed)),
		slog.Int("failed", result.Failed),
	)
	return cart, added, removed
}

// Schedule queues a pass for ref after the debounce window. A newer call for
// the same cart replaces the pending one.
func (s *FreeGiftService) Schedule(ref domain.CartRef) {
	if ref.Key == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if t, ok := s.timers[ref.Key]; ok {
		t.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timers[ref.Key] = giftTimer{
		gen:   gen,
		timer: time.AfterFunc(s.cfg.Debounce, func() { s.fire(ref, gen) }),
	}
}

func (s *FreeGiftService) fire(ref domain.CartRef, gen uint64) {
	s.mu.Lock()
	if t, ok := s.timers[ref.Key]; ok && t.gen == gen {
		delete(s.timers, ref.Key)
	}
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.Timeout)
	defer cancel()

	res, err := s.Reconcile(ctx, ref)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled gift pass failed", slog.String("cart_key", ref.Key), slog.String("error", err.Error()))
		return
	}
	if res.Skipped {
		s.logger.DebugContext(ctx, "gift pass skipped", slog.String("cart_key", ref.Key), slog.String("reason", res.Reason))
	}
}

// Pending reports the number of carts with a queued pass.
func (s *FreeGiftService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels queued passes and waits for running ones until ctx is done,
// after which they are cancelled.
func (s *FreeGiftService) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	for key, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}
