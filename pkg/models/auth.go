package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseTenantModel is the base model for all tenant-scoped entities
type BaseTenantModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID  uuid.UUID       `gorm:"type:uuid;index;not null;constraint:OnDelete:RESTRICT" json:"tenant_id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt *gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty" swaggerignore:"true"`
}

// BaseModel is the base model for system-wide entities
type BaseModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt *gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty" swaggerignore:"true"`
}

// BeforeCreate hook to generate UUID if not set
func (b *BaseTenantModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// BeforeCreate hook to generate UUID if not set
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Tenant represents a company/organization. All contacts, users and call
// logs belong to exactly one tenant.
type Tenant struct {
	BaseModel
	Name              string     `gorm:"not null" json:"name" validate:"required"`
	Domain            string     `json:"domain"`
	Status            string     `gorm:"default:'active'" json:"status"`
	MaxUsers          int        `gorm:"default:5" json:"max_users"`
	SubscriptionStart *time.Time `json:"subscription_start"`
	SubscriptionEnd   *time.Time `json:"subscription_end"`
}

// SubscriptionActive reports whether the tenant subscription window covers at.
// Open-ended windows (nil bounds) are treated as unbounded.
func (t *Tenant) SubscriptionActive(at time.Time) bool {
	if t.Status != "active" {
		return false
	}
	if t.SubscriptionStart != nil && at.Before(*t.SubscriptionStart) {
		return false
	}
	if t.SubscriptionEnd != nil && at.After(*t.SubscriptionEnd) {
		return false
	}
	return true
}

// User represents a system or tenant user
type User struct {
	BaseModel
	TenantID    *uuid.UUID `gorm:"type:uuid;index;constraint:OnDelete:SET NULL" json:"tenant_id,omitempty"` // null for system admins
	Email       string     `gorm:"unique;not null" json:"email" validate:"required,email"`
	Password    string     `gorm:"not null" json:"-"`
	Name        string     `gorm:"not null" json:"name" validate:"required"`
	Phone       string     `json:"phone"`
	Role        string     `gorm:"not null" json:"role" validate:"required"`
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at"`
}

// UpdateProfileRequest represents a request to update user profile
type UpdateProfileRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone"`
}

// ChangePasswordRequest represents a request to change user password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6"`
}
