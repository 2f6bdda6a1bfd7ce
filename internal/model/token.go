// Copyright Project Flowplane Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"regexp"
	"time"

	"github.com/flowplane/flowplane/internal/errs"
)

// TokenStatus is the lifecycle state of a personal access token.
type TokenStatus string

const (
	TokenActive  TokenStatus = "active"
	TokenRevoked TokenStatus = "revoked"
	TokenExpired TokenStatus = "expired"
)

func (s TokenStatus) Validate() error {
	switch s {
	case TokenActive, TokenRevoked, TokenExpired:
		return nil
	default:
		return errs.Validation("unknown token status %q", string(s))
	}
}

// PersonalAccessToken authenticates admin API callers. SecretHash is the
// PHC-encoded Argon2id digest of the token secret and never leaves the
// process.
type PersonalAccessToken struct {
	ID          TokenID     `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Status      TokenStatus `json:"status"`
	Scopes      []string    `json:"scopes"`
	ExpiresAt   *time.Time  `json:"expiresAt,omitempty"`
	LastUsedAt  *time.Time  `json:"lastUsedAt,omitempty"`
	CreatedBy   string      `json:"createdBy,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	Version     int64       `json:"version"`

	SecretHash string `json:"-"`
}

// Usable reports whether the token can authenticate at the given instant.
func (t *PersonalAccessToken) Usable(now time.Time) bool {
	if t.Status != TokenActive {
		return false
	}
	if t.ExpiresAt != nil && !now.Before(*t.ExpiresAt) {
		return false
	}
	return true
}

// Token names are freer than resource names: they never appear in Envoy
// resources, so mixed case and underscores are fine.
var tokenNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,64}$`)

// ValidateTokenName rejects malformed token names before any hashing work
// happens.
func ValidateTokenName(name string) error {
	if !tokenNameRe.MatchString(name) {
		return errs.Validation("token name %q must match [a-zA-Z0-9_-]{3,64}", name)
	}
	return nil
}

// Validate checks the token document. Scope strings are validated by the
// auth package, which owns the grammar.
func (t *PersonalAccessToken) Validate() error {
	if err := ValidateTokenName(t.Name); err != nil {
		return err
	}
	if err := t.Status.Validate(); err != nil {
		return err
	}
	if len(t.Scopes) == 0 {
		return errs.Validation("token requires at least one scope")
	}
	return nil
}
