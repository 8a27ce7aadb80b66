package app

import (
	"os"

	"callpop/internal/auth"
	"callpop/internal/correlate"
	"callpop/internal/repo"
	"callpop/internal/services"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Services holds all application services
type Services struct {
	DB          *gorm.DB
	Logger      zerolog.Logger
	AuthService *auth.Service

	UserRepo    *repo.UserRepository
	TenantRepo  *repo.TenantRepository
	ContactRepo *repo.ContactRepository
	AddressRepo *repo.AddressRepository
	CallLogRepo *repo.CallLogRepository
	AuditRepo   *repo.AuditRepository

	AuditService   *services.AuditService
	ExportService  *services.ExportService
	StorageService *services.StorageService

	Engine *correlate.Engine

	Version string
}

// NewServices creates a new services container. The correlation engine is
// wired against a publisher later, once the websocket hub exists; see
// SetPublisher.
func NewServices(db *gorm.DB, logger zerolog.Logger) *Services {
	userRepo := repo.NewUserRepository(db)
	tenantRepo := repo.NewTenantRepository(db)
	contactRepo := repo.NewContactRepository(db)
	addressRepo := repo.NewAddressRepository(db)
	callLogRepo := repo.NewCallLogRepository(db)
	auditRepo := repo.NewAuditRepository(db)

	authService := auth.NewService(userRepo)
	auditService := services.NewAuditService(auditRepo, logger)

	// Object storage is optional: without S3 credentials exports are only
	// streamed, never archived.
	var archiver services.ExportArchiver
	storageService, err := services.NewStorageService()
	if err != nil {
		logger.Warn().Err(err).Msg("object storage not configured, export archival disabled")
		storageService = nil
	} else {
		archiver = storageService
	}
	exportService := services.NewExportService(callLogRepo, archiver, logger)

	version := os.Getenv("APP_VERSION")
	if version == "" {
		version = "dev"
	}

	return &Services{
		DB:             db,
		Logger:         logger,
		AuthService:    authService,
		UserRepo:       userRepo,
		TenantRepo:     tenantRepo,
		ContactRepo:    contactRepo,
		AddressRepo:    addressRepo,
		CallLogRepo:    callLogRepo,
		AuditRepo:      auditRepo,
		AuditService:   auditService,
		ExportService:  exportService,
		StorageService: storageService,
		Version:        version,
	}
}

// SetPublisher finishes wiring: the correlation engine needs the websocket
// hub for fan-out, and the hub is constructed by the HTTP layer.
func (s *Services) SetPublisher(publisher correlate.Publisher) {
	s.Engine = correlate.NewEngine(s.ContactRepo, s.CallLogRepo, publisher, s.Logger)
}
