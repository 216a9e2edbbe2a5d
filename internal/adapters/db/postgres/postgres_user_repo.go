package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/errors"
	"github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/model"
	repo "github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/repo"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const uniqueViolation = "23505"

// userRecord is the row layout of the users table.
type userRecord struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Username     string     `gorm:"size:50;not null;uniqueIndex"`
	Email        string     `gorm:"size:120;not null;uniqueIndex"`
	PasswordHash string     `gorm:"size:255;not null"`
	FirstName    string     `gorm:"size:50"`
	LastName     string     `gorm:"size:50"`
	IsActive     bool       `gorm:"not null"`
	IsVerified   bool       `gorm:"not null"`
	LastLogin    *time.Time
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (userRecord) TableName() string { return "users" }

func toRecord(u model.User) userRecord {
	return userRecord{
		ID:           u.ID,
		Username:     u.Username,
		Email:        strings.ToLower(u.Email),
		PasswordHash: u.PasswordHash,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		IsActive:     u.IsActive,
		IsVerified:   u.IsVerified,
		LastLogin:    u.LastLogin,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (r userRecord) toModel() model.User {
	return model.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		IsActive:     r.IsActive,
		IsVerified:   r.IsVerified,
		LastLogin:    r.LastLogin,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type PostgresUserRepo struct {
	db *gorm.DB
}

var _ repo.UserRepo = (*PostgresUserRepo)(nil)

// NewPostgresUserRepo expects db to be opened with TranslateError enabled so
// that unique violations surface as gorm.ErrDuplicatedKey on every dialect.
func NewPostgresUserRepo(db *gorm.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func (p *PostgresUserRepo) FindByUsernameOrEmail(ctx context.Context, identifier string) (model.User, error) {
	var rec userRecord
	res := p.db.WithContext(ctx).
		Where("username = ? OR email = ?", identifier, strings.ToLower(identifier)).
		First(&rec)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return model.User{}, customErrors.ErrNotFound
	}
	if err := res.Error; err != nil {
		return model.User{}, customErrors.WrapPersistence(err, "FindByUsernameOrEmail")
	}
	return rec.toModel(), nil
}

func (p *PostgresUserRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var n int64
	res := p.db.WithContext(ctx).
		Model(&userRecord{}).
		Where("username = ? OR email = ?", username, strings.ToLower(email)).
		Count(&n)
	if err := res.Error; err != nil {
		return false, customErrors.WrapPersistence(err, "ExistsByUsernameOrEmail")
	}
	return n > 0, nil
}

func (p *PostgresUserRepo) Insert(ctx context.Context, user model.User) (model.User, error) {
	rec := toRecord(user)
	if err := p.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return model.User{}, customErrors.ErrAlreadyExists
		}
		return model.User{}, customErrors.WrapPersistence(err, "Insert")
	}
	return rec.toModel(), nil
}

func (p *PostgresUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := p.db.WithContext(ctx).
		Model(&userRecord{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{"last_login": at, "updated_at": at})
	if err := res.Error; err != nil {
		return customErrors.WrapPersistence(err, "UpdateLastLogin")
	}
	if res.RowsAffected == 0 {
		return customErrors.ErrNotFound
	}
	return nil
}

func (p *PostgresUserRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	var rec userRecord
	res := p.db.WithContext(ctx).Where("id = ?", id).First(&rec)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return model.User{}, customErrors.ErrNotFound
	}
	if err := res.Error; err != nil {
		return model.User{}, customErrors.WrapPersistence(err, "GetByID")
	}
	return rec.toModel(), nil
}

func (p *PostgresUserRepo) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return customErrors.WrapPersistence(err, "Ping")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return customErrors.WrapPersistence(err, "Ping")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
