package merchant

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresValidator validates credentials against the merchant_api_keys table.
type PostgresValidator struct {
	db *sql.DB
}

var _ Validator = (*PostgresValidator)(nil)

// NewPostgresValidator creates a database-backed credential validator.
func NewPostgresValidator(db *sql.DB) *PostgresValidator {
	return &PostgresValidator{db: db}
}

func (v *PostgresValidator) Validate(ctx context.Context, merchantID, apiKey string) (bool, error) {
	var want string
	err := v.db.QueryRowContext(ctx, `
		SELECT api_key FROM merchant_api_keys WHERE merchant_id = $1
	`, merchantID).Scan(&want)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query merchant key: %w", err)
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(apiKey)) == 1, nil
}
