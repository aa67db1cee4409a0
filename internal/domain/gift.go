package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/slug"
)

// CurrencyAll scopes a rule to every currency.
const CurrencyAll = "ALL"

// giftSentinels are the normalized slugs/names of a placeholder gift product.
var giftSentinels = map[string]bool{
	"free-gift":   true,
	"هدية-مجانية": true,
}

// GiftProduct is the display data of a rule's gift product.
type GiftProduct struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug,omitempty"`
	Image string `json:"image,omitempty"`
}

// FreeGiftRule grants one gift product when the cart subtotal, excluding
// gifts, is within [MinCartValue, MaxCartValue] in Currency.
type FreeGiftRule struct {
	ID           string       `json:"id"`
	Enabled      bool         `json:"enabled"`
	Name         string       `json:"name"`
	MinCartValue float64      `json:"min_cart_value"`
	MaxCartValue *float64     `json:"max_cart_value,omitempty"`
	Currency     string       `json:"currency"`
	ProductID    int          `json:"product_id"`
	ProductIDAr  int          `json:"product_id_ar,omitempty"`
	Priority     int          `json:"priority"`
	MessageEn    string       `json:"message_en"`
	MessageAr    string       `json:"message_ar"`
	Product      *GiftProduct `json:"product,omitempty"`
	ProductAr    *GiftProduct `json:"product_ar,omitempty"`
}

// RuleProductID is the gift product for locale.
func RuleProductID(r FreeGiftRule, locale string) int {
	if locale == "ar" && r.ProductIDAr != 0 {
		return r.ProductIDAr
	}
	return r.ProductID
}

// DisplayName is the gift's name for locale.
func (r FreeGiftRule) DisplayName(locale string) string {
	if locale == "ar" && r.ProductAr != nil && r.ProductAr.Name != "" {
		return r.ProductAr.Name
	}
	if r.Product != nil && r.Product.Name != "" {
		return r.Product.Name
	}
	return r.Name
}

// GiftProductIDs returns every product id any rule can grant.
func GiftProductIDs(rules []FreeGiftRule) IDSet {
	s := make(IDSet, len(rules)*2)
	for _, r := range rules {
		if r.ProductID != 0 {
			s[r.ProductID] = struct{}{}
		}
		if r.ProductIDAr != 0 {
			s[r.ProductIDAr] = struct{}{}
		}
	}
	return s
}

// GiftLine is a cart line recognized as a free gift.
type GiftLine struct {
	ItemKey   string `json:"item_key"`
	ProductID int    `json:"product_id"`
	RuleID    string `json:"rule_id,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

func isSentinelGift(it CartItem) bool {
	if it.Price != 0 {
		return false
	}
	return giftSentinels[slug.Generate(it.Slug)] || giftSentinels[slug.Generate(it.Name)]
}

// FindGiftLines picks out the gift lines in items. A line is a gift when it is
// flagged in its cart data, when its product is some rule's gift product for
// locale, or when it is a zero-priced sentinel product. Untagged lines are
// attributed to the first rule, by priority, granting their product.
func FindGiftLines(items []CartItem, rules []FreeGiftRule, locale string) []GiftLine {
	byProduct := make(map[int]string, len(rules))
	for _, r := range sortedByPriority(rules) {
		pid := RuleProductID(r, locale)
		if _, ok := byProduct[pid]; !ok && pid != 0 {
			byProduct[pid] = r.ID
		}
	}

	var out []GiftLine
	for _, it := range items {
		ruleByProduct, productMatch := byProduct[it.ProductID]
		if !it.Data.FreeGift && !productMatch && !isSentinelGift(it) {
			continue
		}
		ruleID := it.Data.FreeGiftRuleID
		if ruleID == "" {
			ruleID = ruleByProduct
		}
		out = append(out, GiftLine{
			ItemKey:   it.ItemKey,
			ProductID: it.ProductID,
			RuleID:    ruleID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}
	return out
}

// SubtotalWithoutGifts removes the value of gift lines from subtotal.
func SubtotalWithoutGifts(subtotal int64, gifts []GiftLine) int64 {
	for _, g := range gifts {
		subtotal -= g.Price * int64(g.Quantity)
	}
	return subtotal
}

func sortedByPriority(rules []FreeGiftRule) []FreeGiftRule {
	out := append([]FreeGiftRule(nil), rules...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

func currencyMatches(rule, currency string) bool {
	return strings.EqualFold(rule, CurrencyAll) || strings.EqualFold(rule, currency)
}

// MatchingRules returns the enabled rules for currency whose window contains
// subtotal (major units), sorted by ascending priority.
func MatchingRules(rules []FreeGiftRule, currency string, subtotal float64) []FreeGiftRule {
	var out []FreeGiftRule
	for _, r := range sortedByPriority(rules) {
		if !r.Enabled || !currencyMatches(r.Currency, currency) {
			continue
		}
		if subtotal < r.MinCartValue {
			continue
		}
		if r.MaxCartValue != nil && subtotal > *r.MaxCartValue {
			continue
		}
		out = append(out, r)
	}
	return out
}

// GiftPlan is the set of cart changes that brings gift lines in line with
// the matching rules.
type GiftPlan struct {
	ToAdd       []FreeGiftRule `json:"to_add"`
	ToRemove    []GiftLine     `json:"to_remove"`
	FixQuantity []GiftLine     `json:"fix_quantity"`
}

// Empty reports whether the plan changes nothing.
func (p GiftPlan) Empty() bool {
	return len(p.ToAdd) == 0 && len(p.ToRemove) == 0 && len(p.FixQuantity) == 0
}

// ReconcileGifts diffs the gift lines against the matching rules. Gifts
// without a matching rule, and extra gifts for an already-served rule, are
// removed; kept gifts with a quantity above one are set back to one; matching
// rules with no gift are added.
func ReconcileGifts(gifts []GiftLine, matching []FreeGiftRule) GiftPlan {
	active := make(map[string]bool, len(matching))
	for _, r := range matching {
		active[r.ID] = true
	}

	var plan GiftPlan
	served := make(map[string]bool, len(gifts))
	for _, g := range gifts {
		if g.RuleID == "" || !active[g.RuleID] || served[g.RuleID] {
			plan.ToRemove = append(plan.ToRemove, g)
			continue
		}
		served[g.RuleID] = true
		if g.Quantity > 1 {
			plan.FixQuantity = append(plan.FixQuantity, g)
		}
	}

	for _, r := range matching {
		if !served[r.ID] {
			plan.ToAdd = append(plan.ToAdd, r)
		}
	}
	return plan
}

// CartStateHash fingerprints the inputs of a reconciliation pass: currency,
// subtotal, the sorted non-gift product:quantity pairs and the gift lines
// with their quantities.
func CartStateHash(currency string, subtotal int64, items []CartItem, gifts []GiftLine) string {
	giftKeys := make(map[string]bool, len(gifts))
	for _, g := range gifts {
		giftKeys[g.ItemKey] = true
	}

	pairs := make([]string, 0, len(items))
	for _, it := range items {
		if giftKeys[it.ItemKey] {
			continue
		}
		pairs = append(pairs, fmt.Sprintf("%d:%d", it.ProductID, it.Quantity))
	}
	sort.Strings(pairs)

	giftPairs := make([]string, 0, len(gifts))
	for _, g := range gifts {
		giftPairs = append(giftPairs, fmt.Sprintf("%s:%s:%d", g.RuleID, g.ItemKey, g.Quantity))
	}
	sort.Strings(giftPairs)

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s|%s",
		strings.ToUpper(currency), subtotal, strings.Join(pairs, ","), strings.Join(giftPairs, ","))))
	return hex.EncodeToString(sum[:])
}

// GiftProgress describes the next gift the shopper can unlock.
type GiftProgress struct {
	HasNextGift  bool          `json:"has_next_gift"`
	AmountNeeded int           `json:"amount_needed"`
	Rule         *FreeGiftRule `json:"rule,omitempty"`
}

// Progress finds the enabled rule with the lowest minimum above subtotal
// (major units). AmountNeeded is rounded up to a whole unit.
func Progress(rules []FreeGiftRule, currency string, subtotal float64) GiftProgress {
	var next *FreeGiftRule
	for i := range rules {
		r := rules[i]
		if !r.Enabled || !currencyMatches(r.Currency, currency) || r.MinCartValue <= subtotal {
			continue
		}
		if next == nil || r.MinCartValue < next.MinCartValue {
			next = &rules[i]
		}
	}
	if next == nil {
		return GiftProgress{}
	}
	rule := *next
	return GiftProgress{
		HasNextGift:  true,
		AmountNeeded: int(math.Ceil(rule.MinCartValue - subtotal)),
		Rule:         &rule,
	}
}
