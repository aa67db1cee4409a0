package domain

// IDSet is a set of WooCommerce ids.
type IDSet map[int]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...int) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s IDSet) Has(id int) bool {
	_, ok := s[id]
	return ok
}

// BundleRules are the eligibility sets derived from a bundle configuration.
// Empty eligible sets mean every non-excluded product is allowed.
type BundleRules struct {
	EligibleProducts   IDSet
	EligibleCategories IDSet
	ExcludeProducts    IDSet
	ExcludeCategories  IDSet
	UniqueProducts     IDSet
}

// NewBundleRules derives rules from cfg. A nil cfg yields open rules.
func NewBundleRules(cfg *BundleConfiguration) BundleRules {
	if cfg == nil {
		return BundleRules{
			EligibleProducts:   IDSet{},
			EligibleCategories: IDSet{},
			ExcludeProducts:    IDSet{},
			ExcludeCategories:  IDSet{},
			UniqueProducts:     IDSet{},
		}
	}
	return BundleRules{
		EligibleProducts:   NewIDSet(cfg.EligibleProducts...),
		EligibleCategories: NewIDSet(cfg.EligibleCategories...),
		ExcludeProducts:    NewIDSet(cfg.ExcludeProducts...),
		ExcludeCategories:  NewIDSet(cfg.ExcludeCategories...),
		UniqueProducts:     NewIDSet(cfg.UniqueProducts...),
	}
}

// Restricted reports whether any eligible set is non-empty.
func (r BundleRules) Restricted() bool {
	return len(r.EligibleProducts) > 0 || len(r.EligibleCategories) > 0
}

// Allows applies the ordered eligibility rules to p. Exclusions always win
// over explicit eligibility.
func (r BundleRules) Allows(p Product, baseProductID int, giftProducts IDSet) bool {
	if p.ID == baseProductID {
		return false
	}
	if giftProducts.Has(p.ID) {
		return false
	}
	if r.ExcludeProducts.Has(p.ID) {
		return false
	}
	for _, c := range p.Categories {
		if r.ExcludeCategories.Has(c.ID) {
			return false
		}
	}
	if !r.Restricted() {
		return true
	}
	if r.EligibleProducts.Has(p.ID) {
		return true
	}
	for _, c := range p.Categories {
		if r.EligibleCategories.Has(c.ID) {
			return true
		}
	}
	return false
}

// EligibleProducts returns picker options for every product the rules allow,
// in catalog order.
func EligibleProducts(products []Product, rules BundleRules, baseProductID int, giftProducts IDSet) []ProductOption {
	out := make([]ProductOption, 0, len(products))
	for _, p := range products {
		if rules.Allows(p, baseProductID, giftProducts) {
			out = append(out, p.Option())
		}
	}
	return out
}

// AvailableBuckets returns "all" plus every bucket holding at least one option.
func AvailableBuckets(options []ProductOption) []Bucket {
	present := make(map[Bucket]bool, len(bucketOrder))
	for _, o := range options {
		present[o.Category] = true
	}
	out := []Bucket{BucketAll}
	for _, b := range bucketOrder[1:] {
		if present[b] {
			out = append(out, b)
		}
	}
	return out
}
