package models

// PaginationResult represents paginated results
type PaginationResult[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
}

// Swagger-specific types (non-generic to avoid swag parsing issues)

// SwaggerContact represents a contact for swagger docs (without GORM dependencies)
type SwaggerContact struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
	Notes       string `json:"notes,omitempty"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ContactListResponse represents paginated contact results for Swagger docs
type ContactListResponse struct {
	Data       []SwaggerContact `json:"data"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalPages int              `json:"total_pages"`
}

// SwaggerCallLog represents a call log for swagger docs (without GORM dependencies)
type SwaggerCallLog struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenant_id"`
	ContactID       string `json:"contact_id,omitempty"`
	CallerNumber    string `json:"caller_number"`
	Status          string `json:"status"`
	Direction       string `json:"direction"`
	StartedAt       string `json:"started_at"`
	DurationSeconds int    `json:"duration_seconds"`
}

// CallLogListResponse represents paginated call log results for Swagger docs
type CallLogListResponse struct {
	Data       []SwaggerCallLog `json:"data"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalPages int              `json:"total_pages"`
}

// GetAllModels returns all models for GORM AutoMigrate
func GetAllModels() []interface{} {
	return []interface{}{
		// Core models
		&Tenant{},
		&User{},

		// CRM models
		&Contact{},
		&Address{},

		// Call models
		&CallLog{},
		&WebhookAudit{},
	}
}
