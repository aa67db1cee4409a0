package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PricingMode says how a bundle cart item is priced.
type PricingMode string

// Pricing modes. An empty mode is a legacy bundle whose slot prices are
// added on top of the anchor product price.
const (
	PricingFixed PricingMode = "fixed"
	PricingSum   PricingMode = "sum"
)

// Bundle types.
const (
	BundleTypeCustom = "custom"
	BundleTypeFixed  = "fixed"
)

var (
	ErrItemIndex       = errors.New("bundle item index out of range")
	ErrEmptyBundle     = errors.New("an enabled bundle needs at least one item")
	ErrDuplicateItemID = errors.New("bundle item ids must be unique")
)

// ItemDisplay controls how a bundle slot is presented.
type ItemDisplay struct {
	CustomTitle      string  `json:"custom_title"`
	SortBy           string  `json:"sort_by"`
	SortOrder        string  `json:"sort_order"`
	IsDefault        bool    `json:"is_default"`
	DefaultProductID int     `json:"default_product_id,omitempty"`
	Quantity         int     `json:"quantity"`
	DiscountType     string  `json:"discount_type"`
	DiscountValue    float64 `json:"discount_value"`
	IsOptional       bool    `json:"is_optional"`
	ShowPrice        bool    `json:"show_price"`
}

// BundleItem is one slot definition: inclusion and exclusion id sets plus
// display settings.
type BundleItem struct {
	ID                       string      `json:"id"`
	Title                    string      `json:"title"`
	Categories               []int       `json:"categories"`
	ExcludeCategories        []int       `json:"exclude_categories"`
	Tags                     []int       `json:"tags"`
	ExcludeTags              []int       `json:"exclude_tags"`
	Products                 []int       `json:"products"`
	ProductVariations        []int       `json:"product_variations"`
	ExcludeProducts          []int       `json:"exclude_products"`
	ExcludeProductVariations []int       `json:"exclude_product_variations"`
	Display                  ItemDisplay `json:"display"`
}

// NewBundleItem returns an item with default display settings and a fresh id.
func NewBundleItem() BundleItem {
	return BundleItem{
		ID:                       uuid.NewString(),
		Categories:               []int{},
		ExcludeCategories:        []int{},
		Tags:                     []int{},
		ExcludeTags:              []int{},
		Products:                 []int{},
		ProductVariations:        []int{},
		ExcludeProducts:          []int{},
		ExcludeProductVariations: []int{},
		Display: ItemDisplay{
			SortBy:       "date",
			SortOrder:    "desc",
			Quantity:     1,
			DiscountType: "none",
			ShowPrice:    true,
		},
	}
}

func (it BundleItem) clone() BundleItem {
	cp := it
	cp.Categories = cloneInts(it.Categories)
	cp.ExcludeCategories = cloneInts(it.ExcludeCategories)
	cp.Tags = cloneInts(it.Tags)
	cp.ExcludeTags = cloneInts(it.ExcludeTags)
	cp.Products = cloneInts(it.Products)
	cp.ProductVariations = cloneInts(it.ProductVariations)
	cp.ExcludeProducts = cloneInts(it.ExcludeProducts)
	cp.ExcludeProductVariations = cloneInts(it.ExcludeProductVariations)
	return cp
}

func cloneInts(in []int) []int {
	if in == nil {
		return []int{}
	}
	return append([]int(nil), in...)
}

// BundleConfiguration is the admin-edited definition of a bundle product.
type BundleConfiguration struct {
	ProductID   int          `json:"product_id"`
	Title       string       `json:"title"`
	BundleType  string       `json:"bundle_type"`
	ShippingFee string       `json:"shipping_fee"`
	IsEnabled   bool         `json:"is_enabled"`
	Items       []BundleItem `json:"items"`

	EligibleProducts   []int       `json:"eligible_products,omitempty"`
	EligibleCategories []int       `json:"eligible_categories,omitempty"`
	ExcludeProducts    []int       `json:"exclude_products,omitempty"`
	ExcludeCategories  []int       `json:"exclude_categories,omitempty"`
	UniqueProducts     []int       `json:"unique_products,omitempty"`
	PricingMode        PricingMode `json:"pricing_mode,omitempty"`
	BoxPrice           *float64    `json:"box_price,omitempty"`
	FixedPrice         *float64    `json:"fixed_price,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewBundleConfiguration returns an empty, disabled configuration for productID.
func NewBundleConfiguration(productID int, now time.Time) *BundleConfiguration {
	return &BundleConfiguration{
		ProductID:   productID,
		BundleType:  BundleTypeCustom,
		ShippingFee: "apply",
		Items:       []BundleItem{},
		UpdatedAt:   now,
	}
}

func (c *BundleConfiguration) checkIndex(i int) error {
	if i < 0 || i >= len(c.Items) {
		return fmt.Errorf("%w: %d", ErrItemIndex, i)
	}
	return nil
}

// AddItem appends a default item.
func (c *BundleConfiguration) AddItem(now time.Time) BundleItem {
	item := NewBundleItem()
	c.Items = append(c.Items, item)
	c.UpdatedAt = now
	return item
}

// DuplicateItem appends a deep copy of item i with a new id and " (copy)"
// appended to its title.
func (c *BundleConfiguration) DuplicateItem(i int, now time.Time) (BundleItem, error) {
	if err := c.checkIndex(i); err != nil {
		return BundleItem{}, err
	}
	dup := c.Items[i].clone()
	dup.ID = uuid.NewString()
	dup.Title = strings.TrimSpace(dup.Title + " (copy)")
	c.Items = append(c.Items, dup)
	c.UpdatedAt = now
	return dup, nil
}

// RemoveItem drops item i.
func (c *BundleConfiguration) RemoveItem(i int, now time.Time) error {
	if err := c.checkIndex(i); err != nil {
		return err
	}
	c.Items = append(c.Items[:i:i], c.Items[i+1:]...)
	c.UpdatedAt = now
	return nil
}

// UpdateItem replaces item i, keeping its id.
func (c *BundleConfiguration) UpdateItem(i int, item BundleItem, now time.Time) error {
	if err := c.checkIndex(i); err != nil {
		return err
	}
	item = item.clone()
	item.ID = c.Items[i].ID
	c.Items[i] = item
	c.UpdatedAt = now
	return nil
}

// Validate checks the invariants enforced on save.
func (c *BundleConfiguration) Validate() error {
	if c.IsEnabled && len(c.Items) == 0 {
		return ErrEmptyBundle
	}
	seen := make(map[string]struct{}, len(c.Items))
	for _, it := range c.Items {
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateItemID, it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	switch c.PricingMode {
	case "", PricingFixed, PricingSum:
	default:
		return fmt.Errorf("unknown pricing mode %q", c.PricingMode)
	}
	return nil
}

// Option is a selectable id/name pair for the admin tag inputs.
type Option struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// FilterOptions returns options whose name contains query, case-insensitively,
// leaving out ids already selected. An empty query matches everything.
func FilterOptions(options []Option, query string, selected []int) []Option {
	taken := NewIDSet(selected...)
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Option, 0, len(options))
	for _, o := range options {
		if taken.Has(o.ID) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(o.Name), q) {
			continue
		}
		out = append(out, o)
	}
	return out
}
