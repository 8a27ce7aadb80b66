package repo

import "errors"

var (
	// ErrDuplicatePhone is returned when a contact with the same normalized
	// phone number already exists for the tenant.
	ErrDuplicatePhone = errors.New("contact with this phone number already exists")

	// ErrDuplicateLabel is returned when an address label is already used by
	// another address of the same contact.
	ErrDuplicateLabel = errors.New("address label already in use for this contact")
)
