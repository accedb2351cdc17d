package challenge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/authpay/server/internal/model"
)

// PostgresStore is a Store backed by the challenges table. The verified
// transition rides on a conditional UPDATE ... RETURNING, so at-most-once
// semantics hold across service replicas sharing one database.
type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a postgres-backed challenge store.
func NewPostgresStore(db *sql.DB, ttl time.Duration) *PostgresStore {
	return &PostgresStore{db: db, ttl: ttl}
}

const challengeColumns = `id, merchant_id, amount, currency, email, geo, device,
		mfa_required, reason, created_at, expires_at, verified, verified_at`

func (s *PostgresStore) Create(ctx context.Context, ch model.Challenge) (model.Challenge, error) {
	ch.ID = uuid.NewString()
	ch.CreatedAt = time.Now()
	ch.ExpiresAt = ch.CreatedAt.Add(s.ttl)
	ch.Verified = false
	ch.VerifiedAt = nil

	var device sql.NullString
	if ch.Device != nil {
		raw, err := json.Marshal(ch.Device)
		if err != nil {
			return model.Challenge{}, fmt.Errorf("encode device: %w", err)
		}
		device = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO challenges (id, merchant_id, amount, currency, email, geo, device,
			mfa_required, reason, created_at, expires_at, verified)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''), $10, $11, FALSE)
	`, ch.ID, ch.MerchantID, ch.Amount, ch.Currency, ch.Email, ch.Geo, device,
		ch.MFARequired, string(ch.Reason), ch.CreatedAt, ch.ExpiresAt)
	if err != nil {
		return model.Challenge{}, fmt.Errorf("insert challenge: %w", err)
	}
	return ch, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (model.Challenge, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+challengeColumns+`
		FROM challenges
		WHERE id = $1
	`, id)
	return scanChallenge(row)
}

func (s *PostgresStore) MarkVerified(ctx context.Context, id string, now time.Time) (model.Challenge, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE challenges
		SET verified = TRUE, verified_at = $2
		WHERE id = $1 AND verified = FALSE AND expires_at >= $2
		RETURNING `+challengeColumns+`
	`, id, now)

	ch, err := scanChallenge(row)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return model.Challenge{}, err
	}

	// The conditional update matched nothing; classify why.
	var verified bool
	var expiresAt time.Time
	err = s.db.QueryRowContext(ctx, `
		SELECT verified, expires_at FROM challenges WHERE id = $1
	`, id).Scan(&verified, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Challenge{}, ErrNotFound
	}
	if err != nil {
		return model.Challenge{}, fmt.Errorf("classify challenge state: %w", err)
	}
	if expiresAt.Before(now) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM challenges WHERE id = $1 AND verified = FALSE`, id)
		return model.Challenge{}, ErrExpired
	}
	if verified {
		return model.Challenge{}, ErrAlreadyVerified
	}
	// Row appeared between the update and the classifying select.
	return model.Challenge{}, ErrNotFound
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM challenges WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return nil
}

func (s *PostgresStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM challenges WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep challenges: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep rows affected: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM challenges`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count challenges: %w", err)
	}
	return count, nil
}

func scanChallenge(row *sql.Row) (model.Challenge, error) {
	var ch model.Challenge
	var geo, device, reason sql.NullString
	var verifiedAt sql.NullTime
	err := row.Scan(
		&ch.ID,
		&ch.MerchantID,
		&ch.Amount,
		&ch.Currency,
		&ch.Email,
		&geo,
		&device,
		&ch.MFARequired,
		&reason,
		&ch.CreatedAt,
		&ch.ExpiresAt,
		&ch.Verified,
		&verifiedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Challenge{}, ErrNotFound
	}
	if err != nil {
		return model.Challenge{}, fmt.Errorf("scan challenge: %w", err)
	}
	ch.Geo = geo.String
	ch.Reason = model.Reason(reason.String)
	if verifiedAt.Valid {
		t := verifiedAt.Time
		ch.VerifiedAt = &t
	}
	if device.Valid && device.String != "" {
		ch.Device = &model.Device{}
		if err := json.Unmarshal([]byte(device.String), ch.Device); err != nil {
			return model.Challenge{}, fmt.Errorf("decode device: %w", err)
		}
	}
	return ch, nil
}
