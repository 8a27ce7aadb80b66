package models

import "github.com/google/uuid"

// Contact represents a known caller within a tenant. The phone number is
// stored in canonical +digits form and is unique per tenant (enforced by a
// partial unique index, see internal/db).
type Contact struct {
	BaseTenantModel
	PhoneNumber string `gorm:"not null;index" json:"phone_number" validate:"required"`
	Name        string `json:"name"`
	Notes       string `gorm:"type:text" json:"notes"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	Addresses []Address `gorm:"foreignKey:ContactID" json:"addresses,omitempty"`
}

// CreateContactRequest represents a request to create a contact
type CreateContactRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
	Name        string `json:"name"`
	Notes       string `json:"notes"`
}

// UpdateContactRequest represents a request to update a contact
type UpdateContactRequest struct {
	Name     *string `json:"name"`
	Notes    *string `json:"notes"`
	IsActive *bool   `json:"is_active"`
}

// PromoteCallerRequest creates a contact from an unknown-caller call log
type PromoteCallerRequest struct {
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

// ContactID is a helper for nullable contact references in responses
type ContactRef struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
}

// Ref returns a lightweight reference for event payloads
func (c *Contact) Ref() ContactRef {
	return ContactRef{ID: c.ID, Name: c.Name, PhoneNumber: c.PhoneNumber}
}
