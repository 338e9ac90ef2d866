package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/authcore/internal/database"
	"github.com/BradenHooton/authcore/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenRepository handles one-time short code data access
type TokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository creates a new TokenRepository
func NewTokenRepository(db *database.DB) *TokenRepository {
	return &TokenRepository{pool: db.Pool}
}

func scanShortCodeRow(row rowScanner) (*models.ShortCodeToken, error) {
	var token models.ShortCodeToken

	err := row.Scan(&token.Identifier, &token.TokenHash, &token.ExpiresAt, &token.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &token, nil
}

// Upsert stores the hash for identifier, replacing any live token
func (r *TokenRepository) Upsert(ctx context.Context, identifier, tokenHash string, expiresAt time.Time) (*models.ShortCodeToken, error) {
	query := `
		INSERT INTO verification_tokens (identifier, token_hash, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (identifier) DO UPDATE SET
			token_hash = EXCLUDED.token_hash,
			expires_at = EXCLUDED.expires_at,
			created_at = NOW()
		RETURNING identifier, token_hash, expires_at, created_at
	`

	token, err := scanShortCodeRow(r.pool.QueryRow(ctx, query, identifier, tokenHash, expiresAt))
	if err != nil {
		return nil, database.StoreError("store short code", err)
	}

	return token, nil
}

// Take deletes the token for identifier and returns what was stored.
// Only one caller can ever receive a given row.
func (r *TokenRepository) Take(ctx context.Context, identifier string) (*models.ShortCodeToken, error) {
	query := `
		DELETE FROM verification_tokens
		WHERE identifier = $1
		RETURNING identifier, token_hash, expires_at, created_at
	`

	token, err := scanShortCodeRow(r.pool.QueryRow(ctx, query, identifier))
	if err != nil {
		return nil, database.StoreError("take short code", err)
	}

	return token, nil
}

// DeleteExpired removes tokens that expired before now
func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM verification_tokens WHERE expires_at < $1`

	result, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, database.StoreError("delete expired short codes", err)
	}

	return result.RowsAffected(), nil
}
