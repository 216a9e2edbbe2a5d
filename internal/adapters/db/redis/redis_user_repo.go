package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/errors"
	"github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/model"
	repo "github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/repo"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 3

// userHash is the layout of a user:<id> hash. Times are unix nanoseconds,
// a zero last_login means the user never logged in.
type userHash struct {
	ID           string `redis:"id"`
	Username     string `redis:"username"`
	Email        string `redis:"email"`
	PasswordHash string `redis:"password_hash"`
	FirstName    string `redis:"first_name"`
	LastName     string `redis:"last_name"`
	IsActive     bool   `redis:"is_active"`
	IsVerified   bool   `redis:"is_verified"`
	LastLogin    int64  `redis:"last_login"`
	CreatedAt    int64  `redis:"created_at"`
	UpdatedAt    int64  `redis:"updated_at"`
}

func userKey(id uuid.UUID) string { return "user:" + id.String() }

func usernameKey(u string) string { return "user:username:" + u }

func emailKey(e string) string { return "user:email:" + strings.ToLower(e) }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func toHash(u model.User) userHash {
	h := userHash{
		ID:           u.ID.String(),
		Username:     u.Username,
		Email:        strings.ToLower(u.Email),
		PasswordHash: u.PasswordHash,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		IsActive:     u.IsActive,
		IsVerified:   u.IsVerified,
		CreatedAt:    u.CreatedAt.UnixNano(),
		UpdatedAt:    u.UpdatedAt.UnixNano(),
	}
	if u.LastLogin != nil {
		h.LastLogin = u.LastLogin.UnixNano()
	}
	return h
}

func (h userHash) toModel() (model.User, error) {
	id, err := uuid.Parse(h.ID)
	if err != nil {
		return model.User{}, err
	}
	u := model.User{
		ID:           id,
		Username:     h.Username,
		Email:        h.Email,
		PasswordHash: h.PasswordHash,
		FirstName:    h.FirstName,
		LastName:     h.LastName,
		IsActive:     h.IsActive,
		IsVerified:   h.IsVerified,
		CreatedAt:    fromNanos(h.CreatedAt),
		UpdatedAt:    fromNanos(h.UpdatedAt),
	}
	if h.LastLogin != 0 {
		t := fromNanos(h.LastLogin)
		u.LastLogin = &t
	}
	return u, nil
}

// RedisUserRepo keeps every user in a hash plus two index keys pointing at
// its id. Inserts claim both index keys under WATCH so that a concurrent
// registration of the same username or email aborts.
type RedisUserRepo struct {
	client *redis.Client
}

var _ repo.UserRepo = (*RedisUserRepo)(nil)

func NewRedisUserRepo(client *redis.Client) *RedisUserRepo {
	return &RedisUserRepo{client: client}
}

func (r *RedisUserRepo) FindByUsernameOrEmail(ctx context.Context, identifier string) (model.User, error) {
	id, err := r.client.Get(ctx, usernameKey(identifier)).Result()
	if errors.Is(err, redis.Nil) {
		id, err = r.client.Get(ctx, emailKey(identifier)).Result()
	}
	switch {
	case errors.Is(err, redis.Nil):
		return model.User{}, customErrors.ErrNotFound
	case err != nil:
		return model.User{}, customErrors.WrapPersistence(err, "FindByUsernameOrEmail")
	}

	uid, err := uuid.Parse(id)
	if err != nil {
		return model.User{}, customErrors.WrapPersistence(err, "FindByUsernameOrEmail")
	}
	return r.load(ctx, uid, "FindByUsernameOrEmail")
}

func (r *RedisUserRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	n, err := r.client.Exists(ctx, usernameKey(username), emailKey(email)).Result()
	if err != nil {
		return false, customErrors.WrapPersistence(err, "ExistsByUsernameOrEmail")
	}
	return n > 0, nil
}

func (r *RedisUserRepo) Insert(ctx context.Context, user model.User) (model.User, error) {
	h := toHash(user)
	uKey, eKey := usernameKey(h.Username), emailKey(h.Email)

	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, uKey, eKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return customErrors.ErrAlreadyExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, userKey(user.ID), h)
			pipe.Set(ctx, uKey, h.ID, 0)
			pipe.Set(ctx, eKey, h.ID, 0)
			return nil
		})
		return err
	}

	err := r.client.Watch(ctx, txf, uKey, eKey)
	switch {
	case err == nil:
	case errors.Is(err, customErrors.ErrAlreadyExists), errors.Is(err, redis.TxFailedErr):
		// a watched index key changed underneath us: someone else claimed it
		return model.User{}, customErrors.ErrAlreadyExists
	default:
		return model.User{}, customErrors.WrapPersistence(err, "Insert")
	}

	out, err := h.toModel()
	if err != nil {
		return model.User{}, customErrors.WrapPersistence(err, "Insert")
	}
	return out, nil
}

func (r *RedisUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	key := userKey(id)
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return customErrors.ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "last_login", at.UnixNano(), "updated_at", at.UnixNano())
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, customErrors.ErrNotFound):
			return err
		default:
			return customErrors.WrapPersistence(err, "UpdateLastLogin")
		}
	}
	return customErrors.WrapPersistence(redis.TxFailedErr, "UpdateLastLogin")
}

func (r *RedisUserRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return r.load(ctx, id, "GetByID")
}

func (r *RedisUserRepo) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return customErrors.WrapPersistence(err, "Ping")
	}
	return nil
}

func (r *RedisUserRepo) load(ctx context.Context, id uuid.UUID, op string) (model.User, error) {
	cmd := r.client.HGetAll(ctx, userKey(id))
	fields, err := cmd.Result()
	if err != nil {
		return model.User{}, customErrors.WrapPersistence(err, op)
	}
	if len(fields) == 0 {
		return model.User{}, customErrors.ErrNotFound
	}

	var h userHash
	if err := cmd.Scan(&h); err != nil {
		return model.User{}, customErrors.WrapPersistence(err, op)
	}
	u, err := h.toModel()
	if err != nil {
		return model.User{}, customErrors.WrapPersistence(err, op)
	}
	return u, nil
}
