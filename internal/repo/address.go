package repo

import (
	"errors"

	"callpop/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AddressRepository handles address data access
type AddressRepository struct {
	db *gorm.DB
}

// NewAddressRepository creates a new address repository
func NewAddressRepository(db *gorm.DB) *AddressRepository {
	return &AddressRepository{db: db}
}

// Create creates a new address. A non-empty label that is already used by
// another address of the same contact yields ErrDuplicateLabel.
func (r *AddressRepository) Create(address *models.Address) error {
	if err := r.checkLabel(address.TenantID, address.ContactID, address.Label, uuid.Nil); err != nil {
		return err
	}
	return r.db.Create(address).Error
}

// GetByID gets an address by ID
func (r *AddressRepository) GetByID(tenantID, addressID uuid.UUID) (*models.Address, error) {
	var address models.Address
	err := r.db.Where("id = ? AND tenant_id = ?", addressID, tenantID).First(&address).Error
	if err != nil {
		return nil, err
	}
	return &address, nil
}

// GetByContactID lists a contact's addresses, default first
func (r *AddressRepository) GetByContactID(tenantID, contactID uuid.UUID) ([]models.Address, error) {
	var addresses []models.Address
	err := r.db.Where("contact_id = ? AND tenant_id = ?", contactID, tenantID).
		Order("is_default DESC, created_at ASC").
		Find(&addresses).Error
	return addresses, err
}

// Update updates an address, enforcing label uniqueness per contact
func (r *AddressRepository) Update(address *models.Address) error {
	if err := r.checkLabel(address.TenantID, address.ContactID, address.Label, address.ID); err != nil {
		return err
	}
	return r.db.Save(address).Error
}

// Delete removes an address. Addresses are deleted independently of their
// contact.
func (r *AddressRepository) Delete(tenantID, addressID uuid.UUID) error {
	return r.db.Where("id = ? AND tenant_id = ?", addressID, tenantID).Delete(&models.Address{}).Error
}

// SetDefault marks one address as the contact's default
func (r *AddressRepository) SetDefault(tenantID, contactID, addressID uuid.UUID) error {
	tx := r.db.Begin()

	if err := tx.Model(&models.Address{}).
		Where("contact_id = ? AND tenant_id = ?", contactID, tenantID).
		Update("is_default", false).Error; err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Model(&models.Address{}).
		Where("id = ? AND tenant_id = ?", addressID, tenantID).
		Update("is_default", true).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

func (r *AddressRepository) checkLabel(tenantID, contactID uuid.UUID, label string, excludeID uuid.UUID) error {
	if label == "" {
		return nil
	}
	var existing models.Address
	query := r.db.Where("contact_id = ? AND tenant_id = ? AND label = ?", contactID, tenantID, label)
	if excludeID != uuid.Nil {
		query = query.Where("id != ?", excludeID)
	}
	err := query.First(&existing).Error
	if err == nil {
		return ErrDuplicateLabel
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
