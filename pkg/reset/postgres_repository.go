package reset

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a new PostgreSQL reset token repository
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, arg CreateTokenParams) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO password_resets (user_id, token_hash, expires_at) VALUES ($1, $2, $3)`,
		arg.UserID, arg.TokenHash, arg.ExpiresAt)
	return err
}

func (r *PostgresRepository) FindActiveByHash(ctx context.Context, tokenHash string) (PasswordReset, error) {
	var token PasswordReset
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, token_hash, expires_at, used, created_at
		 FROM password_resets WHERE token_hash = $1 AND used = FALSE`,
		tokenHash).
		Scan(&token.ID, &token.UserID, &token.TokenHash, &token.ExpiresAt, &token.Used, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PasswordReset{}, ErrTokenInvalid
		}
		return PasswordReset{}, err
	}
	return token, nil
}

// Consume is a single conditional UPDATE: the database serializes the row
// write, so two concurrent redemptions of one valid token cannot both see
// used = FALSE.
func (r *PostgresRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (int64, error) {
	var userID int64
	err := r.db.QueryRow(ctx,
		`UPDATE password_resets SET used = TRUE
		 WHERE token_hash = $1 AND used = FALSE AND expires_at > $2
		 RETURNING user_id`,
		tokenHash, now).
		Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrTokenInvalid
		}
		return 0, err
	}
	return userID, nil
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, tokenHash string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE password_resets SET used = TRUE WHERE token_hash = $1`,
		tokenHash)
	return err
}

func (r *PostgresRepository) InvalidateAllForUser(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE password_resets SET used = TRUE WHERE user_id = $1 AND used = FALSE`,
		userID)
	return err
}
