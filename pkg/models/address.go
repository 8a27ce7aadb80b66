package models

import "github.com/google/uuid"

// Address represents a delivery address belonging to a contact. Labels are
// unique per contact (partial unique index, see internal/db); the repository
// pre-checks and returns a typed error so handlers can answer 409.
type Address struct {
	BaseTenantModel
	ContactID     uuid.UUID `gorm:"type:uuid;not null;index;constraint:OnDelete:RESTRICT" json:"contact_id"`
	Label         string    `json:"label"` // home, work, etc.
	AddressText   string    `gorm:"type:text;not null" json:"address_text" validate:"required"`
	PhoneOverride string    `json:"phone_override"`
	Comment       string    `json:"comment"`
	IsDefault     bool      `gorm:"default:false" json:"is_default"`
}

// CreateAddressRequest represents a request to create an address
type CreateAddressRequest struct {
	ContactID     uuid.UUID `json:"contact_id" validate:"required"`
	Label         string    `json:"label"`
	AddressText   string    `json:"address_text" validate:"required"`
	PhoneOverride string    `json:"phone_override"`
	Comment       string    `json:"comment"`
	IsDefault     bool      `json:"is_default"`
}

// UpdateAddressRequest represents a request to update an address
type UpdateAddressRequest struct {
	Label         *string `json:"label"`
	AddressText   *string `json:"address_text"`
	PhoneOverride *string `json:"phone_override"`
	Comment       *string `json:"comment"`
	IsDefault     *bool   `json:"is_default"`
}
