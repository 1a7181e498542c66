package repository

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/rewardhub/backend/repository/models"
)

// PostgreSQL error codes this layer cares about.
const (
	PgErrUniqueViolation     = "23505" // unique_violation
	PgErrForeignKeyViolation = "23503" // foreign_key_violation
	PgErrCheckViolation      = "23514" // check_violation
)

// Repository layer error codes.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeNotFound            = "ENTITY_NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInvalidState        = "INVALID_STATE"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeDatabase            = "DATABASE_ERROR"
)

// RepositoryError represents an error in the repository layer.
type RepositoryError struct {
	Code    string
	Message string
	Detail  string
}

func (e *RepositoryError) Error() string {
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

// Repository owns all database access.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New wraps an already-open gorm handle. Tests use this with an in-memory
// sqlite database.
func New(db *gorm.DB, logger *slog.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Open connects to Postgres, retrying while the database container comes up.
func Open(dsn string, logger *slog.Logger) (*Repository, error) {
	var db *gorm.DB
	var err error
	for i := range 10 {
		db, err = gorm.Open(postgres.Open(dsn))
		if err == nil {
			logger.Info("connected to postgres")
			return New(db, logger), nil
		}
		logger.Warn("database connection failed, retrying", "attempt", i+1, "err", err)
		time.Sleep(2 * time.Second)
	}
	return nil, err
}

// Migrate creates or updates the schema for every entity, including the
// partial unique index guarding duplicate awards.
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.User{},
		&models.Achievement{},
		&models.Reward{},
		&models.StudentAward{},
		&models.Redemption{},
	)
}

// Seed inserts a bootstrap admin account and a small starter catalog. Safe
// to call repeatedly.
func (r *Repository) Seed(adminEmail, adminPassword string) error {
	var userCount int64
	if err := r.db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		return err
	}
	if userCount > 0 {
		r.logger.Info("seed data already exists, skipping")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := models.User{
		Name:     "Platform Admin",
		Email:    adminEmail,
		Password: string(hash),
		Role:     models.RoleAdmin,
	}
	if err := r.db.Create(&admin).Error; err != nil {
		return err
	}

	achievements := []models.Achievement{
		{Title: "Dean's List", Description: "Semester GPA in the top percentile", TokenReward: 100, CreatedBy: &admin.ID},
		{Title: "Hackathon Winner", Description: "First place at the campus hackathon", TokenReward: 150, CreatedBy: &admin.ID},
		{Title: "Quiz Champion", Description: "Top score in a faculty quiz series", TokenReward: 75, CreatedBy: &admin.ID},
	}
	for i := range achievements {
		if err := r.db.Create(&achievements[i]).Error; err != nil {
			return err
		}
	}

	rewards := []models.Reward{
		{Title: "Cafeteria Voucher", Description: "One free meal at the campus cafeteria", TokenCost: 30, CreatedBy: &admin.ID},
		{Title: "Library Late-Fee Waiver", Description: "Waives one overdue fine", TokenCost: 20, CreatedBy: &admin.ID},
		{Title: "Campus Hoodie", Description: "Official campus merchandise", TokenCost: 120, CreatedBy: &admin.ID},
	}
	for i := range rewards {
		if err := r.db.Create(&rewards[i]).Error; err != nil {
			return err
		}
	}

	r.logger.Info("database seeding completed")
	return nil
}

// wrapDBError maps a gorm/driver error onto the repository taxonomy.
func wrapDBError(err error, notFoundMsg string) *RepositoryError {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &RepositoryError{Code: CodeNotFound, Message: notFoundMsg}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case PgErrUniqueViolation:
			return &RepositoryError{Code: CodeConflict, Message: "record already exists", Detail: pgErr.Detail}
		case PgErrForeignKeyViolation:
			return &RepositoryError{Code: CodeNotFound, Message: "referenced record does not exist", Detail: pgErr.Detail}
		case PgErrCheckViolation:
			return &RepositoryError{Code: CodeValidation, Message: "constraint violated", Detail: pgErr.Detail}
		}
		return &RepositoryError{Code: CodeDatabase, Message: pgErr.Message, Detail: pgErr.Detail}
	}
	if errors.Is(err, models.ErrInvalidWalletAddress) {
		return &RepositoryError{Code: CodeValidation, Message: err.Error()}
	}
	// sqlite (tests) reports constraint violations as plain strings
	if msg := err.Error(); strings.Contains(msg, "UNIQUE constraint") {
		return &RepositoryError{Code: CodeConflict, Message: "record already exists", Detail: msg}
	}
	return &RepositoryError{Code: CodeDatabase, Message: "database error occurred", Detail: err.Error()}
}
