package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Bucket is the storefront filter chip a bundle candidate falls under.
type Bucket string

// Bucket constants.
const (
	BucketAll      Bucket = "all"
	BucketPerfumes Bucket = "perfumes"
	BucketOils     Bucket = "oils"
	BucketLotions  Bucket = "lotions"
	BucketHome     Bucket = "home"
)

// bucketOrder is the display order of filter chips.
var bucketOrder = []Bucket{BucketAll, BucketPerfumes, BucketOils, BucketLotions, BucketHome}

// bucketKeywords is checked in order. Home precedes perfumes because the
// Arabic word for air freshener contains the word for perfume.
var bucketKeywords = []struct {
	bucket   Bucket
	keywords []string
}{
	{BucketOils, []string{"oil", "دهن", "دهون", "زيت", "زيوت"}},
	{BucketLotions, []string{"lotion", "cream", "body", "لوشن", "كريم", "جسم"}},
	{BucketHome, []string{"home", "bakhoor", "bukhoor", "incense", "diffuser", "candle", "منزل", "بخور", "معطر", "شموع"}},
	{BucketPerfumes, []string{"perfume", "parfum", "fragrance", "eau de", "عطر", "عطور"}},
}

// Category is a WooCommerce product category.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Product is the part of a WooCommerce product the storefront needs.
type Product struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	Slug       string     `json:"slug"`
	Price      float64    `json:"price"`
	Image      string     `json:"image,omitempty"`
	Categories []Category `json:"categories"`
}

// ProductOption is a product as offered in a bundle slot picker.
type ProductOption struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Slug     string  `json:"slug"`
	Image    string  `json:"image,omitempty"`
	Category Bucket  `json:"category"`
}

// ClassifyCategory buckets a category name by keyword, case-insensitively.
func ClassifyCategory(name string) Bucket {
	lower := strings.ToLower(name)
	if lower == "" {
		return BucketAll
	}
	for _, bk := range bucketKeywords {
		for _, kw := range bk.keywords {
			if matchesKeyword(lower, kw) {
				return bk.bucket
			}
		}
	}
	return BucketAll
}

// matchesKeyword reports whether a Latin keyword starts a word of s, so
// "oil" matches "Oils" but not "Toilette". Arabic keywords match anywhere
// since they usually follow the attached article.
func matchesKeyword(s, kw string) bool {
	if !isLatin(kw) {
		return strings.Contains(s, kw)
	}
	for i := 0; i < len(s); {
		j := strings.Index(s[i:], kw)
		if j < 0 {
			return false
		}
		at := i + j
		if prev, _ := utf8.DecodeLastRuneInString(s[:at]); !unicode.IsLetter(prev) {
			return true
		}
		i = at + 1
	}
	return false
}

func isLatin(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// Option projects p into a picker option bucketed by its primary category.
func (p Product) Option() ProductOption {
	bucket := BucketAll
	if len(p.Categories) > 0 {
		bucket = ClassifyCategory(p.Categories[0].Name)
	}
	return ProductOption{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		Slug:     p.Slug,
		Image:    p.Image,
		Category: bucket,
	}
}
