package db

import (
	"fmt"
	"log"
	"os"

	"callpop/pkg/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase creates a new database connection
func NewDatabase() (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_SSLMODE"),
		os.Getenv("DB_TIMEZONE"),
	)

	config := &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Error),
		DisableForeignKeyConstraintWhenMigrating: false,
	}

	db, err := gorm.Open(postgres.Open(dsn), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// AutoMigrate runs database migrations using GORM
func AutoMigrate(db *gorm.DB) error {
	log.Println("Running GORM AutoMigrate...")

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		log.Printf("Warning: Could not create uuid-ossp extension: %v", err)
	}

	if err := db.AutoMigrate(models.GetAllModels()...); err != nil {
		return fmt.Errorf("failed to run GORM AutoMigrate: %w", err)
	}

	if err := createCustomIndexes(db); err != nil {
		log.Printf("Warning: Failed to create some custom indexes: %v", err)
	}

	log.Println("GORM AutoMigrate completed successfully")
	return nil
}

// createCustomIndexes creates the partial unique indexes GORM cannot express
// in struct tags.
func createCustomIndexes(db *gorm.DB) error {
	indexes := []string{
		// One contact per normalized phone number per tenant, among live rows.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_contacts_tenant_phone ON contacts(tenant_id, phone_number) WHERE deleted_at IS NULL`,

		// Address labels are unique per contact.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_addresses_contact_label ON addresses(contact_id, label) WHERE deleted_at IS NULL AND label != ''`,

		// Default-address lookups per contact.
		`CREATE INDEX IF NOT EXISTS idx_addresses_contact_default ON addresses (contact_id, is_default) WHERE is_default = true`,

		// Call history is read newest-first per tenant.
		`CREATE INDEX IF NOT EXISTS idx_call_logs_tenant_started ON call_logs (tenant_id, started_at DESC)`,

		// Webhook retry dedup probes by provider event id within a window.
		`CREATE INDEX IF NOT EXISTS idx_call_logs_tenant_webhook ON call_logs (tenant_id, webhook_id) WHERE webhook_id != ''`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			log.Printf("Warning: Failed to create index: %s - %v", idx, err)
		}
	}

	return nil
}

// SeedInitialData creates initial system data
func SeedInitialData(db *gorm.DB) error {
	log.Println("Seeding initial data...")

	var userCount int64
	if err := db.Model(&models.User{}).Where("role = ?", "system_admin").Count(&userCount).Error; err != nil {
		return fmt.Errorf("failed to check existing users: %w", err)
	}

	if userCount == 0 {
		adminEmail := os.Getenv("ADMIN_EMAIL")
		adminPassword := os.Getenv("ADMIN_PASSWORD_HASH")
		if adminEmail == "" || adminPassword == "" {
			log.Println("ADMIN_EMAIL/ADMIN_PASSWORD_HASH not set, skipping admin seed")
			return nil
		}

		adminUser := models.User{
			Email:    adminEmail,
			Password: adminPassword, // bcrypt hash
			Name:     "System Administrator",
			Role:     "system_admin",
			IsActive: true,
		}

		if err := db.Create(&adminUser).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}

		log.Println("Admin user created successfully")
	}

	return nil
}

// RunMigrations is the main migration function called from main.go
func RunMigrations(db *gorm.DB) error {
	log.Println("Starting database migrations...")

	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}

	if err := SeedInitialData(db); err != nil {
		return fmt.Errorf("initial data seeding failed: %w", err)
	}

	log.Println("All migrations completed successfully")
	return nil
}
