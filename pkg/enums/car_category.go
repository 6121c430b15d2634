package enums

import "fmt"

// CarCategory buckets fleet vehicles for browsing and filtering.
type CarCategory string

const (
	CarCategoryCompact  CarCategory = "compact"
	CarCategorySedan    CarCategory = "sedan"
	CarCategorySUV      CarCategory = "suv"
	CarCategoryLuxury   CarCategory = "luxury"
	CarCategorySports   CarCategory = "sports"
	CarCategoryElectric CarCategory = "electric"
)

var validCarCategories = []CarCategory{
	CarCategoryCompact,
	CarCategorySedan,
	CarCategorySUV,
	CarCategoryLuxury,
	CarCategorySports,
	CarCategoryElectric,
}

// String implements fmt.Stringer.
func (c CarCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CarCategory.
func (c CarCategory) IsValid() bool {
	for _, candidate := range validCarCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCarCategory converts raw input into a CarCategory.
func ParseCarCategory(value string) (CarCategory, error) {
	for _, candidate := range validCarCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid car category %q", value)
}
