// Package merchant validates merchant API credentials. The lifecycle
// service only ever reads credentials; issuing and rotating keys is out of
// scope here.
package merchant

import (
	"context"
	"crypto/subtle"
)

// Validator checks a merchant_id / api_key pair.
type Validator interface {
	Validate(ctx context.Context, merchantID, apiKey string) (bool, error)
}

// StaticValidator validates against a fixed in-memory key map, typically
// loaded from configuration. The map is never mutated after construction, so
// no locking is needed.
type StaticValidator struct {
	keys map[string]string
}

var _ Validator = (*StaticValidator)(nil)

// NewStaticValidator creates a validator over the given merchant_id → api_key map.
func NewStaticValidator(keys map[string]string) *StaticValidator {
	copied := make(map[string]string, len(keys))
	for id, key := range keys {
		copied[id] = key
	}
	return &StaticValidator{keys: copied}
}

func (v *StaticValidator) Validate(_ context.Context, merchantID, apiKey string) (bool, error) {
	want, ok := v.keys[merchantID]
	if !ok {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(apiKey)) == 1, nil
}
