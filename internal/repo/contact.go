package repo

import (
	"errors"

	"callpop/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContactRepository handles contact data access
type ContactRepository struct {
	db *gorm.DB
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// GetByID gets a contact by ID
func (r *ContactRepository) GetByID(tenantID, id uuid.UUID) (*models.Contact, error) {
	var contact models.Contact
	err := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&contact).Error
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// GetByPhone gets an active contact by its canonical phone number. Returns
// (nil, nil) when no active contact has that number; absence is not an error.
func (r *ContactRepository) GetByPhone(tenantID uuid.UUID, phone string) (*models.Contact, error) {
	var contact models.Contact
	err := r.db.Where("phone_number = ? AND tenant_id = ? AND is_active = true", phone, tenantID).First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}

// Create creates a new contact. The phone number must already be normalized;
// a duplicate within the tenant yields ErrDuplicatePhone.
func (r *ContactRepository) Create(contact *models.Contact) error {
	existing, err := r.GetByPhone(contact.TenantID, contact.PhoneNumber)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrDuplicatePhone
	}
	return r.db.Create(contact).Error
}

// Update updates a contact
func (r *ContactRepository) Update(contact *models.Contact) error {
	return r.db.Save(contact).Error
}

// Deactivate flags a contact inactive. Contacts are never hard-deleted so
// call logs keep their references.
func (r *ContactRepository) Deactivate(tenantID, id uuid.UUID) error {
	return r.db.Model(&models.Contact{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Update("is_active", false).Error
}

// List lists contacts with pagination
func (r *ContactRepository) List(tenantID uuid.UUID, limit, offset int) (*models.PaginationResult[models.Contact], error) {
	return r.ListWithSearch(tenantID, limit, offset, "")
}

// ListWithSearch lists contacts with pagination and search
func (r *ContactRepository) ListWithSearch(tenantID uuid.UUID, limit, offset int, search string) (*models.PaginationResult[models.Contact], error) {
	var contacts []models.Contact
	var total int64

	query := r.db.Model(&models.Contact{}).Where("tenant_id = ?", tenantID)

	if search != "" {
		searchPattern := "%" + search + "%"
		query = query.Where("name ILIKE ? OR phone_number LIKE ?", searchPattern, searchPattern)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	err := query.Order("name ASC").Limit(limit).Offset(offset).Find(&contacts).Error
	if err != nil {
		return nil, err
	}

	return paginate(contacts, total, limit, offset), nil
}
