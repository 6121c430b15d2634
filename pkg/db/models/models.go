package models

// All returns every model registered for schema auto-migration.
func All() []any {
	return []any{
		&User{},
		&Car{},
		&Booking{},
		&Payment{},
		&PaymentRefund{},
	}
}
