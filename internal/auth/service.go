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

package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/flowplane/flowplane/internal/errs"
	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/store"
)

// bootstrapNamespace derives the deterministic id of the seeded setup
// token from the configured secret, so operators can assemble the full
// bearer string without reading it back from the server.
var bootstrapNamespace = uuid.MustParse("9d8b5d07-5b53-43a4-9a2e-fb15b7e2a3d1")

// BootstrapTokenName is the reserved name of the seeded setup token.
const BootstrapTokenName = "bootstrap-token"

// Service implements the token lifecycle and the authentication pipeline.
type Service struct {
	store *store.Store

	logrus.FieldLogger
}

// NewService returns a token service backed by the given store.
func NewService(log logrus.FieldLogger, st *store.Store) *Service {
	return &Service{
		store:       st,
		FieldLogger: log.WithField("context", "auth"),
	}
}

// Authenticate resolves a bearer string to an identity. Hash mismatches
// report the same error as unknown ids, so probing learns nothing. On
// success it records usage and writes an auth.token.authenticated audit
// row.
func (s *Service) Authenticate(ctx context.Context, bearer, clientIP, userAgent string) (*Context, error) {
	id, secret, err := SplitToken(bearer)
	if err != nil {
		return nil, err
	}

	tok, err := s.store.GetTokenByID(ctx, id)
	if err != nil {
		if errs.IsKind(err, errs.KindNotFound) {
			return nil, errs.Unauthenticated("token not found")
		}
		return nil, err
	}
	switch {
	case tok.Status == model.TokenRevoked:
		return nil, errs.Unauthenticated("token has been revoked")
	case tok.Status == model.TokenExpired:
		return nil, errs.Unauthenticated("token has expired")
	case tok.ExpiresAt != nil && !time.Now().Before(*tok.ExpiresAt):
		return nil, errs.Unauthenticated("token has expired")
	case tok.Status != model.TokenActive:
		return nil, errs.Unauthenticated("token is not active")
	}
	if !VerifySecret(tok.SecretHash, secret) {
		// Indistinguishable from an unknown id.
		return nil, errs.Unauthenticated("token not found")
	}

	now := time.Now()
	if err := s.store.TouchTokenUsage(ctx, tok.ID, now); err != nil {
		return nil, err
	}
	if err := s.store.AppendAudit(ctx, &model.AuditEvent{
		Actor:        tok.Name,
		Action:       model.AuditTokenAuthenticated,
		ResourceType: "token",
		ResourceID:   string(tok.ID),
		ClientIP:     clientIP,
		UserAgent:    userAgent,
	}); err != nil {
		return nil, err
	}

	return &Context{
		TokenID:   string(tok.ID),
		TokenName: tok.Name,
		Scopes:    tok.Scopes,
		UserID:    tok.CreatedBy,
		ClientIP:  clientIP,
		UserAgent: userAgent,
	}, nil
}

// CreateToken mints a new personal access token. The returned bearer
// string is the only time the secret is visible.
func (s *Service) CreateToken(ctx context.Context, actor *Context, tok *model.PersonalAccessToken) (string, error) {
	if err := model.ValidateTokenName(tok.Name); err != nil {
		return "", err
	}
	if len(tok.Scopes) == 0 {
		return "", errs.Validation("token requires at least one scope")
	}
	if err := ValidateScopes(tok.Scopes); err != nil {
		return "", err
	}
	if tok.ExpiresAt != nil && !tok.ExpiresAt.After(time.Now()) {
		return "", errs.Validation("token expiry must be in the future")
	}

	secret, err := NewSecret()
	if err != nil {
		return "", err
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return "", err
	}
	tok.SecretHash = hash
	tok.Status = model.TokenActive
	if actor != nil {
		tok.CreatedBy = actor.TokenName
	}

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateToken(ctx, tok); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, auditFor(actor, model.AuditTokenCreated, tok, nil, tok))
	})
	if err != nil {
		return "", err
	}
	s.WithField("token", tok.Name).Info("created access token")
	return FormatToken(tok.ID, secret), nil
}

// GetToken loads one token.
func (s *Service) GetToken(ctx context.Context, id model.TokenID) (*model.PersonalAccessToken, error) {
	return s.store.GetTokenByID(ctx, id)
}

// ListTokens pages through every token.
func (s *Service) ListTokens(ctx context.Context, page model.ListPage) ([]*model.PersonalAccessToken, error) {
	return s.store.ListTokens(ctx, page)
}

// UpdateToken patches description, status, expiry and scopes.
func (s *Service) UpdateToken(ctx context.Context, actor *Context, tok *model.PersonalAccessToken) error {
	if err := tok.Status.Validate(); err != nil {
		return err
	}
	if err := ValidateScopes(tok.Scopes); err != nil {
		return err
	}

	old, err := s.store.GetTokenByID(ctx, tok.ID)
	if err != nil {
		return err
	}
	action := model.AuditTokenUpdated
	if old.Status == model.TokenActive && tok.Status == model.TokenRevoked {
		action = model.AuditTokenRevoked
	}
	return s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.UpdateToken(ctx, tok); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, auditFor(actor, action, tok, old, tok))
	})
}

// RotateToken replaces the secret, invalidating the old one immediately.
func (s *Service) RotateToken(ctx context.Context, actor *Context, id model.TokenID) (string, error) {
	tok, err := s.store.GetTokenByID(ctx, id)
	if err != nil {
		return "", err
	}
	if tok.Status != model.TokenActive {
		return "", errs.Validation("only active tokens can be rotated")
	}

	secret, err := NewSecret()
	if err != nil {
		return "", err
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return "", err
	}

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.ReplaceTokenSecret(ctx, id, hash); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, auditFor(actor, model.AuditTokenRotated, tok, nil, nil))
	})
	if err != nil {
		return "", err
	}
	s.WithField("token", tok.Name).Info("rotated access token")
	return FormatToken(id, secret), nil
}

// DeleteToken removes a token entirely; both halves stop authenticating.
func (s *Service) DeleteToken(ctx context.Context, actor *Context, id model.TokenID) error {
	return s.store.WithTx(ctx, func(tx *store.Tx) error {
		tok, err := tx.DeleteToken(ctx, id)
		if err != nil {
			return err
		}
		return tx.AppendAudit(ctx, auditFor(actor, model.AuditTokenRevoked, tok, tok, nil))
	})
}

// EnsureBootstrapToken seeds the one-shot setup token from the configured
// secret on a fresh installation. It is idempotent: once any token exists
// it does nothing.
func (s *Service) EnsureBootstrapToken(ctx context.Context, secret string) (*model.PersonalAccessToken, bool, error) {
	if secret == "" {
		return nil, false, nil
	}
	n, err := s.store.CountTokens(ctx)
	if err != nil {
		return nil, false, err
	}
	if n > 0 {
		return nil, false, nil
	}

	hash, err := HashSecret(secret)
	if err != nil {
		return nil, false, err
	}
	tok := &model.PersonalAccessToken{
		// Deterministic id: the operator holds the secret and can
		// assemble the full bearer string offline.
		ID:         model.TokenID(uuid.NewSHA1(bootstrapNamespace, []byte(secret)).String()),
		Name:       BootstrapTokenName,
		SecretHash: hash,
		Status:     model.TokenActive,
		Scopes:     []string{ScopeAdminAll},
	}
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateToken(ctx, tok); err != nil {
			// Another replica seeded concurrently; that one wins.
			if errs.IsKind(err, errs.KindConflict) {
				return nil
			}
			return err
		}
		return tx.AppendAudit(ctx, auditFor(nil, model.AuditTokenSeeded, tok, nil, tok))
	})
	if err != nil {
		return nil, false, err
	}
	s.WithField("token", FormatToken(tok.ID, "<secret>")).Info("seeded bootstrap token")
	return tok, true, nil
}

func auditFor(actor *Context, action string, tok *model.PersonalAccessToken, old, updated *model.PersonalAccessToken) *model.AuditEvent {
	e := &model.AuditEvent{
		Actor:        "system",
		Action:       action,
		ResourceType: "token",
		ResourceID:   string(tok.ID),
	}
	if actor != nil {
		e.Actor = actor.TokenName
		e.ClientIP = actor.ClientIP
		e.UserAgent = actor.UserAgent
	}
	if old != nil {
		e.Old = model.MustEncode(old)
	}
	if updated != nil {
		e.New = model.MustEncode(updated)
	}
	return e
}
