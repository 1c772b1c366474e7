package usage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Store = (*Postgres)(nil)

const ddlUsage = `
CREATE TABLE IF NOT EXISTS api_keys (
    id           BIGSERIAL    PRIMARY KEY,
    organisation TEXT         NOT NULL,
    key_hash     TEXT         NOT NULL UNIQUE,
    prefix       TEXT         NOT NULL,
    active       BOOLEAN      NOT NULL DEFAULT TRUE,
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS usage_records (
    id             BIGSERIAL    PRIMARY KEY,
    key_id         BIGINT       REFERENCES api_keys (id) ON DELETE SET NULL,
    method         TEXT         NOT NULL,
    source_size    INTEGER      NOT NULL DEFAULT 0,
    corrected_size INTEGER      NOT NULL DEFAULT 0,
    status         TEXT         NOT NULL DEFAULT 'PENDING',
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_usage_records_key_id
    ON usage_records (key_id);

CREATE INDEX IF NOT EXISTS idx_usage_records_created_at
    ON usage_records (created_at);
`

// Postgres is the PostgreSQL-backed [Store]. It holds a single
// [pgxpool.Pool]; all methods are safe for concurrent use.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database at dsn and runs [Migrate] to ensure
// the usage tables exist.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("usage store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("usage store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("usage store: migrate: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Migrate creates the api_keys and usage_records tables if they do not
// exist. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlUsage); err != nil {
		return fmt.Errorf("usage migrate: %w", err)
	}
	return nil
}

// Authenticate implements [Store]. Secrets are compared by SHA-256 hash,
// so the database never holds usable credentials.
func (p *Postgres) Authenticate(ctx context.Context, secret string) (APIKey, error) {
	const q = `
		SELECT id, organisation, prefix, active, created_at
		FROM   api_keys
		WHERE  key_hash = $1 AND active`

	var key APIKey
	err := p.pool.QueryRow(ctx, q, HashSecret(secret)).Scan(
		&key.ID, &key.Organisation, &key.Prefix, &key.Active, &key.Created,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKey{}, ErrUnauthorized
	}
	if err != nil {
		return APIKey{}, fmt.Errorf("usage store: authenticate: %w", err)
	}
	return key, nil
}

// Begin implements [Store].
func (p *Postgres) Begin(ctx context.Context, keyID int64, method string, sourceSize int) (int64, error) {
	const q = `
		INSERT INTO usage_records (key_id, method, source_size, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	var id int64
	if err := p.pool.QueryRow(ctx, q, keyID, method, sourceSize, StatusInProgress).Scan(&id); err != nil {
		return 0, fmt.Errorf("usage store: begin record: %w", err)
	}
	return id, nil
}

// Finish implements [Store].
func (p *Postgres) Finish(ctx context.Context, recordID int64, status Status, correctedSize int) error {
	const q = `
		UPDATE usage_records
		SET    status = $2, corrected_size = $3
		WHERE  id = $1`

	tag, err := p.pool.Exec(ctx, q, recordID, status, correctedSize)
	if err != nil {
		return fmt.Errorf("usage store: finish record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("usage store: finish record: no record with id %d", recordID)
	}
	return nil
}

// CreateKey stores a new API key for organisation and returns it. The
// caller keeps the secret; only its hash is persisted.
func (p *Postgres) CreateKey(ctx context.Context, organisation, secret string) (APIKey, error) {
	const q = `
		INSERT INTO api_keys (organisation, key_hash, prefix)
		VALUES ($1, $2, $3)
		RETURNING id, organisation, prefix, active, created_at`

	var key APIKey
	err := p.pool.QueryRow(ctx, q, organisation, HashSecret(secret), keyPrefix(secret)).Scan(
		&key.ID, &key.Organisation, &key.Prefix, &key.Active, &key.Created,
	)
	if err != nil {
		return APIKey{}, fmt.Errorf("usage store: create key: %w", err)
	}
	return key, nil
}

// Ping probes the underlying connection pool. Used by readiness checks.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close implements [Store].
func (p *Postgres) Close() {
	p.pool.Close()
}

// HashSecret returns the hex SHA-256 digest under which a secret is
// stored and looked up.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func keyPrefix(secret string) string {
	const n = 8
	if len(secret) < n {
		return secret
	}
	return secret[:n]
}
