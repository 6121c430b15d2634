package types

// RentalLocation is a pickup or dropoff point attached to a booking.
type RentalLocation struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
}

// DriverInfo carries the license details a renter supplies at booking time.
type DriverInfo struct {
	LicenseNumber string `json:"license_number"`
	LicenseExpiry string `json:"license_expiry,omitempty"`
}
