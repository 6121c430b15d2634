package enums

import "fmt"

// Transmission describes a car's gearbox type.
type Transmission string

const (
	TransmissionManual    Transmission = "manual"
	TransmissionAutomatic Transmission = "automatic"
)

var validTransmissions = []Transmission{
	TransmissionManual,
	TransmissionAutomatic,
}

// String implements fmt.Stringer.
func (t Transmission) String() string {
	return string(t)
}

// IsValid reports whether the value is a known Transmission.
func (t Transmission) IsValid() bool {
	for _, candidate := range validTransmissions {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransmission converts raw input into a Transmission.
func ParseTransmission(value string) (Transmission, error) {
	for _, candidate := range validTransmissions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transmission %q", value)
}
