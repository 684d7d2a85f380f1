package accounts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type Account struct {
	ID        uint64
	Email     string
	CreatedAt time.Time
}

// Identity is what a successful login hands to the session layer.
type Identity struct {
	AccountID uint64
	Email     string
}

type CallbackResult struct {
	Identity   Identity
	RedirectTo string
	Created    bool
}

// ProviderID accepts the provider's user id either as a JSON number or as a
// quoted decimal string (snowflake ids overflow float64 in most clients).
type ProviderID uint64

func (p *ProviderID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}
	if len(data) > 1 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("provider id: %w", err)
	}
	*p = ProviderID(v)
	return nil
}

// Profile is the subset of the provider's user-info payload the login flow
// relies on.
type Profile struct {
	ID       ProviderID `json:"id" validate:"required"`
	Email    string     `json:"email" validate:"required"`
	Verified *bool      `json:"verified" validate:"required,eq=true"`
	Username string     `json:"username,omitempty"`
}
