package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dyluth/vigil/pkg/protocol"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool for dsn, verifies it and applies the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS validators (
		id              VARCHAR(36) PRIMARY KEY,
		public_key      VARCHAR(64) NOT NULL UNIQUE,
		ip              VARCHAR(64) NOT NULL DEFAULT '',
		location        TEXT NOT NULL DEFAULT '',
		pending_payouts BIGINT NOT NULL DEFAULT 0,
		created_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS websites (
		id         VARCHAR(36) PRIMARY KEY,
		url        TEXT NOT NULL,
		disabled   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS website_ticks (
		id           VARCHAR(36) PRIMARY KEY,
		website_id   VARCHAR(36) NOT NULL REFERENCES websites(id),
		validator_id VARCHAR(36) NOT NULL REFERENCES validators(id),
		status       VARCHAR(8) NOT NULL,
		latency      BIGINT NOT NULL,
		created_at   TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ticks_website_created ON website_ticks(website_id, created_at DESC);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PutTarget upserts a website row.
func (s *PostgresStore) PutTarget(ctx context.Context, t *Target) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}
	if t.CreatedAtMs == 0 {
		t.CreatedAtMs = time.Now().UnixMilli()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO websites (id, url, disabled, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET url = EXCLUDED.url, disabled = EXCLUDED.disabled`,
		t.ID, t.URL, t.Disabled, time.UnixMilli(t.CreatedAtMs))
	if err != nil {
		return fmt.Errorf("writing target: %w", err)
	}
	return nil
}

// ListActiveTargets returns enabled websites ordered by creation time.
func (s *PostgresStore) ListActiveTargets(ctx context.Context) ([]*Target, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, disabled, created_at FROM websites
		WHERE disabled = FALSE ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying targets: %w", err)
	}
	defer rows.Close()

	var targets []*Target
	for rows.Next() {
		var t Target
		var createdAt time.Time
		if err := rows.Scan(&t.ID, &t.URL, &t.Disabled, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning target: %w", err)
		}
		t.CreatedAtMs = createdAt.UnixMilli()
		targets = append(targets, &t)
	}
	return targets, rows.Err()
}

const validatorColumns = `id, public_key, ip, location, pending_payouts, created_at`

func scanValidator(row interface{ Scan(...any) error }) (*Validator, error) {
	var v Validator
	var createdAt time.Time
	if err := row.Scan(&v.ID, &v.PublicKey, &v.IP, &v.Location, &v.PendingPayouts, &createdAt); err != nil {
		return nil, err
	}
	v.CreatedAtMs = createdAt.UnixMilli()
	return &v, nil
}

// FindValidatorByPublicKey returns ErrNotFound if no validator uses publicKey.
func (s *PostgresStore) FindValidatorByPublicKey(ctx context.Context, publicKey string) (*Validator, error) {
	v, err := scanValidator(s.db.QueryRowContext(ctx,
		`SELECT `+validatorColumns+` FROM validators WHERE public_key = $1`, publicKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying validator by public key: %w", err)
	}
	return v, nil
}

// FindOrCreateValidator relies on the UNIQUE constraint on public_key:
// a concurrent insert of the same key is a no-op and both callers read the same row.
func (s *PostgresStore) FindOrCreateValidator(ctx context.Context, publicKey, ip, location string) (*Validator, bool, error) {
	if publicKey == "" {
		return nil, false, fmt.Errorf("public key cannot be empty")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO validators (id, public_key, ip, location) VALUES ($1, $2, $3, $4)
		ON CONFLICT (public_key) DO NOTHING`,
		uuid.New().String(), publicKey, ip, location)
	if err != nil {
		return nil, false, fmt.Errorf("inserting validator: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("reading insert result: %w", err)
	}

	v, err := s.FindValidatorByPublicKey(ctx, publicKey)
	if err != nil {
		return nil, false, err
	}
	return v, inserted == 1, nil
}

// GetValidator returns ErrNotFound if the id is unknown.
func (s *PostgresStore) GetValidator(ctx context.Context, validatorID string) (*Validator, error) {
	v, err := scanValidator(s.db.QueryRowContext(ctx,
		`SELECT `+validatorColumns+` FROM validators WHERE id = $1`, validatorID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying validator: %w", err)
	}
	return v, nil
}

// ListValidators returns all validators ordered by creation time.
func (s *PostgresStore) ListValidators(ctx context.Context) ([]*Validator, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+validatorColumns+` FROM validators ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying validators: %w", err)
	}
	defer rows.Close()

	var validators []*Validator
	for rows.Next() {
		v, err := scanValidator(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning validator: %w", err)
		}
		validators = append(validators, v)
	}
	return validators, rows.Err()
}

// AppendTickAndCredit inserts the tick and increments pending_payouts in one
// transaction. Any failure rolls back both writes.
func (s *PostgresStore) AppendTickAndCredit(ctx context.Context, tick *Tick, amount int64) (err error) {
	if err := tick.Validate(); err != nil {
		return fmt.Errorf("invalid tick: %w", err)
	}
	if amount < 0 {
		return fmt.Errorf("credit amount must be >= 0, got %d", amount)
	}
	if tick.CreatedAtMs == 0 {
		tick.CreatedAtMs = time.Now().UnixMilli()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE validators SET pending_payouts = pending_payouts + $1 WHERE id = $2`,
		amount, tick.ValidatorID)
	if err != nil {
		return fmt.Errorf("crediting validator: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("failed to commit tick: %w", ErrUnknownValidator)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO website_ticks (id, website_id, validator_id, status, latency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		tick.ID, tick.TargetID, tick.ValidatorID, string(tick.Status), tick.LatencyMs, time.UnixMilli(tick.CreatedAtMs))
	if err != nil {
		return fmt.Errorf("inserting tick: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing tick: %w", err)
	}
	return nil
}

// ListTicks returns up to limit of the newest ticks for a website.
// A limit <= 0 returns all ticks.
func (s *PostgresStore) ListTicks(ctx context.Context, targetID string, limit int) ([]*Tick, error) {
	query := `SELECT id, website_id, validator_id, status, latency, created_at
		FROM website_ticks WHERE website_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{targetID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ticks: %w", err)
	}
	defer rows.Close()

	var ticks []*Tick
	for rows.Next() {
		var t Tick
		var status string
		var createdAt time.Time
		if err := rows.Scan(&t.ID, &t.TargetID, &t.ValidatorID, &status, &t.LatencyMs, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning tick: %w", err)
		}
		t.Status = protocol.Status(status)
		t.CreatedAtMs = createdAt.UnixMilli()
		ticks = append(ticks, &t)
	}
	return ticks, rows.Err()
}
