package enums

import "fmt"

// CarSort names the orderings the fleet listing supports.
type CarSort string

const (
	CarSortPrice  CarSort = "price"
	CarSortYear   CarSort = "year"
	CarSortRating CarSort = "rating"
	CarSortName   CarSort = "name"
)

var validCarSorts = []CarSort{
	CarSortPrice,
	CarSortYear,
	CarSortRating,
	CarSortName,
}

// String implements fmt.Stringer.
func (c CarSort) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CarSort.
func (c CarSort) IsValid() bool {
	for _, candidate := range validCarSorts {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCarSort converts raw input into a CarSort.
func ParseCarSort(value string) (CarSort, error) {
	for _, candidate := range validCarSorts {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid car sort %q", value)
}
