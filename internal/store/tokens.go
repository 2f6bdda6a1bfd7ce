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

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/flowplane/flowplane/internal/errs"
	"github.com/flowplane/flowplane/internal/model"
)

type tokenRow struct {
	ID          string       `db:"id"`
	Name        string       `db:"name"`
	Description string       `db:"description"`
	SecretHash  string       `db:"secret_hash"`
	Status      string       `db:"status"`
	ExpiresAt   sql.NullTime `db:"expires_at"`
	LastUsedAt  sql.NullTime `db:"last_used_at"`
	CreatedBy   string       `db:"created_by"`
	Version     int64        `db:"version"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
}

func (r tokenRow) toModel() *model.PersonalAccessToken {
	t := &model.PersonalAccessToken{
		ID:          model.TokenID(r.ID),
		Name:        r.Name,
		Description: r.Description,
		SecretHash:  r.SecretHash,
		Status:      model.TokenStatus(r.Status),
		CreatedBy:   r.CreatedBy,
		Version:     r.Version,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if r.ExpiresAt.Valid {
		ts := r.ExpiresAt.Time.UTC()
		t.ExpiresAt = &ts
	}
	if r.LastUsedAt.Valid {
		ts := r.LastUsedAt.Time.UTC()
		t.LastUsedAt = &ts
	}
	return t
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// CreateToken inserts a token with its ordered scope set.
func (r *queries) CreateToken(ctx context.Context, t *model.PersonalAccessToken) error {
	if t.ID == "" {
		t.ID = model.TokenID(model.NewUID())
	}
	if t.Status == "" {
		t.Status = model.TokenActive
	}
	ts := now()
	t.Version, t.CreatedAt, t.UpdatedAt = 1, ts, ts

	const insert = `
		INSERT INTO personal_access_tokens
			(id, name, description, secret_hash, status, expires_at, last_used_at, created_by, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, r.q.Rebind(insert),
		string(t.ID), t.Name, t.Description, t.SecretHash, string(t.Status),
		nullTime(t.ExpiresAt), nullTime(t.LastUsedAt), t.CreatedBy,
		t.Version, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isConflict(err) {
			return errs.Conflict("token %q already exists", t.Name)
		}
		return translate(err)
	}
	return r.replaceTokenScopes(ctx, t.ID, t.Scopes)
}

func (r *queries) replaceTokenScopes(ctx context.Context, id model.TokenID, scopes []string) error {
	const del = `DELETE FROM token_scopes WHERE token_id = ?`
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(del), string(id)); err != nil {
		return translate(err)
	}
	const insert = `INSERT INTO token_scopes (token_id, scope, position) VALUES (?, ?, ?)`
	for i, scope := range scopes {
		if _, err := r.q.ExecContext(ctx, r.q.Rebind(insert), string(id), scope, i); err != nil {
			if isConflict(err) {
				return errs.Validation("duplicate scope %q", scope)
			}
			return translate(err)
		}
	}
	return nil
}

func (r *queries) tokenScopes(ctx context.Context, id model.TokenID) ([]string, error) {
	const query = `SELECT scope FROM token_scopes WHERE token_id = ? ORDER BY position ASC`
	var scopes []string
	if err := sqlx.SelectContext(ctx, r.q, &scopes, r.q.Rebind(query), string(id)); err != nil {
		return nil, translate(err)
	}
	return scopes, nil
}

// GetTokenByID loads one token with its scopes.
func (r *queries) GetTokenByID(ctx context.Context, id model.TokenID) (*model.PersonalAccessToken, error) {
	var row tokenRow
	const query = `SELECT * FROM personal_access_tokens WHERE id = ?`
	if err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(query), string(id)); err != nil {
		return nil, notFound(err, "token", string(id))
	}
	t := row.toModel()
	scopes, err := r.tokenScopes(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Scopes = scopes
	return t, nil
}

// GetTokenByName loads one token by its unique name.
func (r *queries) GetTokenByName(ctx context.Context, name string) (*model.PersonalAccessToken, error) {
	var row tokenRow
	const query = `SELECT * FROM personal_access_tokens WHERE name = ?`
	if err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(query), name); err != nil {
		return nil, notFound(err, "token", name)
	}
	t := row.toModel()
	scopes, err := r.tokenScopes(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Scopes = scopes
	return t, nil
}

// ListTokens returns tokens ordered by (created_at, id).
func (r *queries) ListTokens(ctx context.Context, page model.ListPage) ([]*model.PersonalAccessToken, error) {
	page = page.Clamp()

	const query = `SELECT * FROM personal_access_tokens ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
	var rows []tokenRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), page.Limit, page.Offset); err != nil {
		return nil, translate(err)
	}
	out := make([]*model.PersonalAccessToken, 0, len(rows))
	for _, row := range rows {
		t := row.toModel()
		scopes, err := r.tokenScopes(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		t.Scopes = scopes
		out = append(out, t)
	}
	return out, nil
}

// CountTokens reports the total number of tokens, used by bootstrap
// seeding to detect a fresh installation.
func (r *queries) CountTokens(ctx context.Context) (int, error) {
	var n int
	const query = `SELECT COUNT(1) FROM personal_access_tokens`
	if err := sqlx.GetContext(ctx, r.q, &n, query); err != nil {
		return 0, translate(err)
	}
	return n, nil
}

// UpdateToken writes description, status, expiry and scopes under
// optimistic concurrency. Name and secret hash are not touched here.
func (r *queries) UpdateToken(ctx context.Context, t *model.PersonalAccessToken) error {
	ts := now()
	const update = `
		UPDATE personal_access_tokens
		SET description = ?, status = ?, expires_at = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`
	res, err := r.q.ExecContext(ctx, r.q.Rebind(update),
		t.Description, string(t.Status), nullTime(t.ExpiresAt), ts, string(t.ID), t.Version)
	if err != nil {
		return translate(err)
	}
	if err := r.checkVersionedUpdate(ctx, res, "personal_access_tokens", string(t.ID), t.Version); err != nil {
		return err
	}
	if err := r.replaceTokenScopes(ctx, t.ID, t.Scopes); err != nil {
		return err
	}
	t.Version++
	t.UpdatedAt = ts
	return nil
}

// ReplaceTokenSecret swaps the stored hash during rotation, bumping the
// row version unconditionally: rotation always wins over concurrent edits.
func (r *queries) ReplaceTokenSecret(ctx context.Context, id model.TokenID, secretHash string) error {
	const update = `
		UPDATE personal_access_tokens
		SET secret_hash = ?, version = version + 1, updated_at = ?
		WHERE id = ?`
	res, err := r.q.ExecContext(ctx, r.q.Rebind(update), secretHash, now(), string(id))
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translate(err)
	}
	if n == 0 {
		return errs.NotFound("token", string(id))
	}
	return nil
}

// TouchTokenUsage records a successful authentication without disturbing
// the row version.
func (r *queries) TouchTokenUsage(ctx context.Context, id model.TokenID, usedAt time.Time) error {
	const update = `UPDATE personal_access_tokens SET last_used_at = ? WHERE id = ?`
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(update), usedAt.UTC(), string(id)); err != nil {
		return translate(err)
	}
	return nil
}

// DeleteToken removes a token and, by cascade, its scopes.
func (r *queries) DeleteToken(ctx context.Context, id model.TokenID) (*model.PersonalAccessToken, error) {
	t, err := r.GetTokenByID(ctx, id)
	if err != nil {
		return nil, err
	}
	const del = `DELETE FROM personal_access_tokens WHERE id = ?`
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(del), string(id)); err != nil {
		return nil, translate(err)
	}
	return t, nil
}

// ExpireTokens flips active tokens whose expiry has passed and returns
// them, so the sweeper can write one audit row per transition.
func (r *queries) ExpireTokens(ctx context.Context, asOf time.Time) ([]*model.PersonalAccessToken, error) {
	const query = `
		SELECT * FROM personal_access_tokens
		WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ?
		ORDER BY created_at ASC, id ASC`
	var rows []tokenRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query),
		string(model.TokenActive), asOf.UTC()); err != nil {
		return nil, translate(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ts := now()
	const update = `
		UPDATE personal_access_tokens
		SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND status = ?`
	out := make([]*model.PersonalAccessToken, 0, len(rows))
	for _, row := range rows {
		res, err := r.q.ExecContext(ctx, r.q.Rebind(update),
			string(model.TokenExpired), ts, row.ID, string(model.TokenActive))
		if err != nil {
			return nil, translate(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, translate(err)
		}
		if n == 0 {
			// Lost a race with a concurrent revoke; nothing to audit.
			continue
		}
		t := row.toModel()
		t.Status = model.TokenExpired
		t.Version++
		t.UpdatedAt = ts
		out = append(out, t)
	}
	return out, nil
}
