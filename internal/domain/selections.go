package domain

import "errors"

// Slot layout of a build-your-own-set bundle.
const (
	SlotCount     = 5
	RequiredSlots = 3
)

var (
	ErrInvalidSlot      = errors.New("slot index out of range")
	ErrUniqueTaken      = errors.New("product is unique and already selected in another slot")
	ErrBundleIncomplete = errors.New("bundle requires the first three slots to be filled")
)

// BundleLine is one product inside a bundle cart item.
type BundleLine struct {
	ProductID int     `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity,omitempty"`
}

// Selections are the shopper's five bundle slots. Slots 0-2 are required.
type Selections [SlotCount]*ProductOption

// Select writes option into slot. A unique product already sitting in a
// different slot is rejected.
func (s *Selections) Select(slot int, option ProductOption, rules BundleRules) error {
	if slot < 0 || slot >= SlotCount {
		return ErrInvalidSlot
	}
	if rules.UniqueProducts.Has(option.ID) {
		for i, o := range s {
			if i != slot && o != nil && o.ID == option.ID {
				return ErrUniqueTaken
			}
		}
	}
	opt := option
	s[slot] = &opt
	return nil
}

// Remove empties slot without shifting the others.
func (s *Selections) Remove(slot int) error {
	if slot < 0 || slot >= SlotCount {
		return ErrInvalidSlot
	}
	s[slot] = nil
	return nil
}

// IsDisabled reports whether productID is unique and already occupies a slot.
func (s *Selections) IsDisabled(productID int, rules BundleRules) bool {
	if !rules.UniqueProducts.Has(productID) {
		return false
	}
	for _, o := range s {
		if o != nil && o.ID == productID {
			return true
		}
	}
	return false
}

// IsValid reports whether every required slot is filled.
func (s *Selections) IsValid() bool {
	for i := 0; i < RequiredSlots; i++ {
		if s[i] == nil {
			return false
		}
	}
	return true
}

// Total sums the prices of filled slots in major units.
func (s *Selections) Total() float64 {
	var total float64
	for _, o := range s {
		if o != nil {
			total += o.Price
		}
	}
	return total
}

// BundleItems serializes filled slots in slot order.
func (s *Selections) BundleItems() []BundleLine {
	out := make([]BundleLine, 0, SlotCount)
	for _, o := range s {
		if o != nil {
			out = append(out, BundleLine{ProductID: o.ID, Name: o.Name, Price: o.Price})
		}
	}
	return out
}
