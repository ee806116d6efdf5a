package models

import "strings"

// Category is the kind of report a candidate image belongs to. It is used to
// present results, never to score them.
type Category string

const (
	CategoryPerson  Category = "person"
	CategoryPet     Category = "pet"
	CategoryDevice  Category = "device"
	CategoryVehicle Category = "vehicle"
	CategoryItem    Category = "item"
)

// AllCategories lists every supported report category in display order.
func AllCategories() []Category {
	return []Category{CategoryPerson, CategoryPet, CategoryDevice, CategoryVehicle, CategoryItem}
}

// ParseCategory normalizes user input into a known Category.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllCategories() {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// CandidateImage references one stored report's photo.
type CandidateImage struct {
	ID            string            `json:"id"`
	Category      Category          `json:"category"`
	ImageLocation string            `json:"image_url"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Well-known metadata keys filled by the corpus repository.
const (
	MetaTitle    = "title"
	MetaLocation = "location"
	MetaDate     = "date"
	MetaStatus   = "status"
)
