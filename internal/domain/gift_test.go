package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func giftRules() []FreeGiftRule {
	return []FreeGiftRule{
		{ID: "r500", Enabled: true, Name: "Spend 500", MinCartValue: 500, Currency: "AED", ProductID: 900, ProductIDAr: 901, Priority: 2},
		{ID: "r300", Enabled: true, Name: "Spend 300", MinCartValue: 300, MaxCartValue: ptr(450.0), Currency: "ALL", ProductID: 800, Priority: 1},
		{ID: "off", Enabled: false, MinCartValue: 0, Currency: "ALL", ProductID: 700},
		{ID: "sar", Enabled: true, MinCartValue: 100, Currency: "SAR", ProductID: 600},
	}
}

func giftItem(key string, productID, qty int, ruleID string) CartItem {
	return CartItem{
		ItemKey:   key,
		ProductID: productID,
		Quantity:  qty,
		Data:      CartItemData{FreeGift: true, FreeGiftRuleID: ruleID, FreeGiftUniqueKey: key + "-nonce"},
	}
}

// applyPlan mutates items the way the cart service would.
func applyPlan(items []CartItem, plan GiftPlan, locale string) []CartItem {
	removed := map[string]bool{}
	for _, g := range plan.ToRemove {
		removed[g.ItemKey] = true
	}
	fixed := map[string]bool{}
	for _, g := range plan.FixQuantity {
		fixed[g.ItemKey] = true
	}
	var out []CartItem
	for _, it := range items {
		if removed[it.ItemKey] {
			continue
		}
		if fixed[it.ItemKey] {
			it.Quantity = 1
		}
		out = append(out, it)
	}
	for _, r := range plan.ToAdd {
		out = append(out, giftItem("gift-"+r.ID, RuleProductID(r, locale), 1, r.ID))
	}
	return out
}

func TestRuleProductID(t *testing.T) {
	r := giftRules()[0]
	assert.Equal(t, 900, RuleProductID(r, "en"))
	assert.Equal(t, 901, RuleProductID(r, "ar"))
	assert.Equal(t, 800, RuleProductID(giftRules()[1], "ar"), "falls back when no arabic product")
}

func TestFindGiftLines(t *testing.T) {
	items := []CartItem{
		{ItemKey: "paid", ProductID: 1, Quantity: 1, Price: 60000},
		giftItem("flagged", 555, 1, "r500"),
		{ItemKey: "by-product", ProductID: 800, Quantity: 2, Price: 0},
		{ItemKey: "sentinel", ProductID: 42, Quantity: 1, Price: 0, Name: "Free Gift"},
		{ItemKey: "not-sentinel", ProductID: 43, Quantity: 1, Price: 500, Name: "Free Gift"},
	}

	got := FindGiftLines(items, giftRules(), "en")
	require.Len(t, got, 3)
	assert.Equal(t, GiftLine{ItemKey: "flagged", ProductID: 555, RuleID: "r500", Quantity: 1}, got[0])
	assert.Equal(t, "r300", got[1].RuleID, "untagged gift attributed by product id")
	assert.Equal(t, "sentinel", got[2].ItemKey)
	assert.Empty(t, got[2].RuleID)
}

func TestSubtotalWithoutGifts(t *testing.T) {
	gifts := []GiftLine{{Price: 0, Quantity: 1}, {Price: 250, Quantity: 2}}
	assert.Equal(t, int64(9500), SubtotalWithoutGifts(10000, gifts))
}

func TestMatchingRules(t *testing.T) {
	tests := []struct {
		name     string
		currency string
		subtotal float64
		want     []string
	}{
		{"below every threshold", "AED", 99, nil},
		{"in the capped window", "AED", 400, []string{"r300"}},
		{"above the cap", "AED", 600, []string{"r500"}},
		{"exact minimum", "AED", 500, []string{"r500"}},
		{"currency scoped, priority ordered", "SAR", 400, []string{"sar", "r300"}},
		{"case insensitive currency", "aed", 600, []string{"r500"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got []string
			for _, r := range MatchingRules(giftRules(), tc.currency, tc.subtotal) {
				got = append(got, r.ID)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMatchingRules_SortedByPriorityStable(t *testing.T) {
	rules := []FreeGiftRule{
		{ID: "b", Enabled: true, Currency: "ALL", Priority: 5},
		{ID: "a", Enabled: true, Currency: "ALL", Priority: 1},
		{ID: "c", Enabled: true, Currency: "ALL", Priority: 5},
	}
	got := MatchingRules(rules, "AED", 10)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
}

func TestReconcileGifts_AddsMissingRemovesStale(t *testing.T) {
	rules := giftRules()
	gifts := []GiftLine{{ItemKey: "old", ProductID: 800, RuleID: "r300", Quantity: 1}}

	plan := ReconcileGifts(gifts, MatchingRules(rules, "AED", 600))
	require.Len(t, plan.ToRemove, 1)
	assert.Equal(t, "old", plan.ToRemove[0].ItemKey)
	require.Len(t, plan.ToAdd, 1)
	assert.Equal(t, "r500", plan.ToAdd[0].ID)
	assert.Empty(t, plan.FixQuantity)
}

func TestReconcileGifts_DuplicateGiftForSameRuleRemoved(t *testing.T) {
	matching := MatchingRules(giftRules(), "AED", 600)
	gifts := []GiftLine{
		{ItemKey: "g1", RuleID: "r500", Quantity: 1},
		{ItemKey: "g2", RuleID: "r500", Quantity: 1},
	}
	plan := ReconcileGifts(gifts, matching)
	assert.Equal(t, []GiftLine{gifts[1]}, plan.ToRemove)
	assert.Empty(t, plan.ToAdd)
}

func TestReconcileGifts_UnattributedGiftRemoved(t *testing.T) {
	plan := ReconcileGifts([]GiftLine{{ItemKey: "s", ProductID: 42}}, nil)
	require.Len(t, plan.ToRemove, 1)
}

func TestReconcileGifts_QuantityForcedToOneInOnePass(t *testing.T) {
	rules := []FreeGiftRule{
		{ID: "a", Enabled: true, Currency: "ALL", ProductID: 10},
		{ID: "b", Enabled: true, Currency: "ALL", ProductID: 11},
	}
	items := []CartItem{giftItem("ga", 10, 4, "a"), giftItem("gb", 11, 2, "b")}

	gifts := FindGiftLines(items, rules, "en")
	plan := ReconcileGifts(gifts, MatchingRules(rules, "AED", 0))
	items = applyPlan(items, plan, "en")

	for _, g := range FindGiftLines(items, rules, "en") {
		assert.Equal(t, 1, g.Quantity, g.ItemKey)
	}
}

func TestReconcileGifts_ConvergesOnStableCart(t *testing.T) {
	rules := giftRules()
	items := []CartItem{{ItemKey: "paid", ProductID: 1, Quantity: 1, Price: 60000}}
	cur := Currency{Code: "AED", MinorUnit: 2}

	pass := func() GiftPlan {
		gifts := FindGiftLines(items, rules, "en")
		sub := SubtotalWithoutGifts(60000, gifts)
		plan := ReconcileGifts(gifts, MatchingRules(rules, cur.Code, cur.ToMajor(sub)))
		items = applyPlan(items, plan, "en")
		return plan
	}

	first := pass()
	assert.Len(t, first.ToAdd, 1)
	for i := 0; i < 3; i++ {
		assert.True(t, pass().Empty(), "pass %d should change nothing", i+2)
	}
	assert.Len(t, FindGiftLines(items, rules, "en"), 1)
}

func TestReconcileGifts_RemovedWhenThresholdDrops(t *testing.T) {
	rules := []FreeGiftRule{{ID: "r500", Enabled: true, MinCartValue: 500, Currency: "ALL", ProductID: 900}}
	cur := Currency{Code: "AED", MinorUnit: 2}
	items := []CartItem{
		{ItemKey: "a", ProductID: 1, Quantity: 1, Price: 40000},
		{ItemKey: "b", ProductID: 2, Quantity: 1, Price: 20000},
	}

	pass := func(subtotal int64) GiftPlan {
		gifts := FindGiftLines(items, rules, "en")
		plan := ReconcileGifts(gifts, MatchingRules(rules, cur.Code, cur.ToMajor(SubtotalWithoutGifts(subtotal, gifts))))
		items = applyPlan(items, plan, "en")
		return plan
	}

	require.Len(t, pass(60000).ToAdd, 1)
	require.Len(t, FindGiftLines(items, rules, "en"), 1)

	items = items[1:]
	items[0].Price = 40000
	plan := pass(40000)
	require.Len(t, plan.ToRemove, 1)
	assert.Equal(t, "r500", plan.ToRemove[0].RuleID)
	assert.Empty(t, FindGiftLines(items, rules, "en"))
}

func TestCartStateHash(t *testing.T) {
	items := []CartItem{
		{ItemKey: "a", ProductID: 1, Quantity: 2},
		{ItemKey: "b", ProductID: 2, Quantity: 1},
		giftItem("g", 900, 1, "r500"),
	}
	gifts := FindGiftLines(items, giftRules(), "en")
	h := CartStateHash("AED", 60000, items, gifts)

	reordered := []CartItem{items[2], items[1], items[0]}
	assert.Equal(t, h, CartStateHash("AED", 60000, reordered, gifts))

	withoutGift := items[:2]
	assert.NotEqual(t, h, CartStateHash("AED", 60000, withoutGift, nil))

	bumped := append([]CartItem{}, items...)
	bumped[2].Quantity = 3
	assert.NotEqual(t, h, CartStateHash("AED", 60000, bumped, FindGiftLines(bumped, giftRules(), "en")),
		"a gift quantity change is a new state")

	assert.NotEqual(t, h, CartStateHash("AED", 60001, items, gifts))
	assert.NotEqual(t, h, CartStateHash("SAR", 60000, items, gifts))
	changed := append([]CartItem{}, items...)
	changed[0].Quantity = 3
	assert.NotEqual(t, h, CartStateHash("AED", 60000, changed, gifts))
}

func TestProgress(t *testing.T) {
	rules := giftRules()

	p := Progress(rules, "AED", 250.4)
	require.True(t, p.HasNextGift)
	assert.Equal(t, "r300", p.Rule.ID)
	assert.Equal(t, 50, p.AmountNeeded)

	p = Progress(rules, "AED", 320)
	assert.Equal(t, "r500", p.Rule.ID)
	assert.Equal(t, 180, p.AmountNeeded)

	assert.False(t, Progress(rules, "AED", 500).HasNextGift)
}

func TestGiftProductIDs(t *testing.T) {
	s := GiftProductIDs(giftRules())
	for _, id := range []int{900, 901, 800, 700, 600} {
		assert.True(t, s.Has(id))
	}
}
