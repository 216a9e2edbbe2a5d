package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	customErrors "github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/errors"
	"github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&userRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func setupMock(t *testing.T) (*PostgresUserRepo, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(pgdriver.New(pgdriver.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open gorm: %v", err)
	}
	return NewPostgresUserRepo(db), mock
}

func newUser(username, email string) model.User {
	now := time.Now().UTC().Truncate(time.Second)
	return model.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: "$2a$04$hash",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestPostgresUserRepo_InsertAndFind(t *testing.T) {
	repo := NewPostgresUserRepo(setupDB(t))
	ctx := context.Background()
	user := newUser("john123", "john@example.com")

	created, err := repo.Insert(ctx, user)
	if err != nil || created.ID != user.ID {
		t.Fatalf("insert %v", err)
	}

	byName, err := repo.FindByUsernameOrEmail(ctx, "john123")
	if err != nil || byName.ID != user.ID {
		t.Fatalf("find by username %v", err)
	}
	byEmail, err := repo.FindByUsernameOrEmail(ctx, "JOHN@example.com")
	if err != nil || byEmail.ID != user.ID {
		t.Fatalf("find by email %v", err)
	}
	if byEmail.PasswordHash != user.PasswordHash || !byEmail.IsActive || byEmail.IsVerified {
		t.Fatalf("unexpected row %+v", byEmail)
	}
	if byEmail.LastLogin != nil {
		t.Fatalf("fresh user must have no last login")
	}

	if _, err := repo.FindByUsernameOrEmail(ctx, "JOHN123"); !customErrors.IsNotFound(err) {
		t.Fatalf("usernames are case-sensitive, got %v", err)
	}
	if _, err := repo.FindByUsernameOrEmail(ctx, "nobody"); !customErrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresUserRepo_Exists(t *testing.T) {
	repo := NewPostgresUserRepo(setupDB(t))
	ctx := context.Background()
	if _, err := repo.Insert(ctx, newUser("alice", "alice@example.com")); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		username, email string
		want            bool
	}{
		{"alice", "other@example.com", true},
		{"bob", "ALICE@example.com", true},
		{"bob", "bob@example.com", false},
	}
	for _, c := range cases {
		got, err := repo.ExistsByUsernameOrEmail(ctx, c.username, c.email)
		if err != nil {
			t.Fatal(err)
		}
		if got != c.want {
			t.Fatalf("%s/%s: want %v got %v", c.username, c.email, c.want, got)
		}
	}
}

func TestPostgresUserRepo_InsertDuplicate(t *testing.T) {
	repo := NewPostgresUserRepo(setupDB(t))
	ctx := context.Background()
	if _, err := repo.Insert(ctx, newUser("alice", "alice@example.com")); err != nil {
		t.Fatal(err)
	}

	if _, err := repo.Insert(ctx, newUser("alice", "second@example.com")); !customErrors.IsAlreadyExists(err) {
		t.Fatalf("duplicate username: %v", err)
	}
	if _, err := repo.Insert(ctx, newUser("second", "Alice@Example.com")); !customErrors.IsAlreadyExists(err) {
		t.Fatalf("duplicate email: %v", err)
	}
}

func TestPostgresUserRepo_ConcurrentInsertOneWins(t *testing.T) {
	repo := NewPostgresUserRepo(setupDB(t))
	ctx := context.Background()

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.Insert(ctx, newUser("racer", fmt.Sprintf("racer%d@example.com", i)))
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !customErrors.IsAlreadyExists(err):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("want exactly one insert, got %d", ok)
	}
}

func TestPostgresUserRepo_UpdateLastLoginAndGet(t *testing.T) {
	repo := NewPostgresUserRepo(setupDB(t))
	ctx := context.Background()
	user := newUser("alice", "alice@example.com")
	if _, err := repo.Insert(ctx, user); err != nil {
		t.Fatal(err)
	}

	at := user.CreatedAt.Add(time.Hour)
	if err := repo.UpdateLastLogin(ctx, user.ID, at); err != nil {
		t.Fatal(err)
	}
	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastLogin == nil || !got.LastLogin.Equal(at) || !got.UpdatedAt.Equal(at) {
		t.Fatalf("last login not stored: %+v", got)
	}
	if !got.CreatedAt.Equal(user.CreatedAt) {
		t.Fatalf("created_at changed: %v", got.CreatedAt)
	}

	if err := repo.UpdateLastLogin(ctx, uuid.New(), at); !customErrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := repo.GetByID(ctx, uuid.New()); !customErrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresUserRepo_Ping(t *testing.T) {
	repo := NewPostgresUserRepo(setupDB(t))
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresUserRepo_StoreErrors(t *testing.T) {
	repo, mock := setupMock(t)
	ctx := context.Background()
	down := errors.New("db down")

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnError(down)
	if _, err := repo.FindByUsernameOrEmail(ctx, "alice"); !customErrors.IsPersistence(err) || !errors.Is(err, down) {
		t.Fatalf("find: %v", err)
	}

	mock.ExpectQuery(`SELECT count\(\*\) FROM "users"`).WillReturnError(down)
	if _, err := repo.ExistsByUsernameOrEmail(ctx, "alice", "a@example.com"); !customErrors.IsPersistence(err) {
		t.Fatalf("exists: %v", err)
	}

	mock.ExpectExec(`UPDATE "users" SET`).WillReturnError(down)
	if err := repo.UpdateLastLogin(ctx, uuid.New(), time.Now()); !customErrors.IsPersistence(err) {
		t.Fatalf("update: %v", err)
	}

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnError(down)
	if _, err := repo.GetByID(ctx, uuid.New()); !customErrors.IsPersistence(err) {
		t.Fatalf("get: %v", err)
	}

	mock.ExpectPing().WillReturnError(down)
	if err := repo.Ping(ctx); !customErrors.IsPersistence(err) {
		t.Fatalf("ping: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresUserRepo_UpdateNoRows(t *testing.T) {
	repo, mock := setupMock(t)
	mock.ExpectExec(`UPDATE "users" SET`).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpdateLastLogin(context.Background(), uuid.New(), time.Now()); !customErrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("pg 23505 must be a unique violation")
	}
	if !isUniqueViolation(fmt.Errorf("create: %w", gorm.ErrDuplicatedKey)) {
		t.Fatal("wrapped ErrDuplicatedKey must be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23502"}) {
		t.Fatal("not-null violation is not a unique violation")
	}
	if isUniqueViolation(errors.New("boom")) {
		t.Fatal("plain error is not a unique violation")
	}
}
