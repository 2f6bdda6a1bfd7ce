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
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/flowplane/flowplane/internal/errs"
	"github.com/flowplane/flowplane/internal/model"
)

type secretRow struct {
	ID         string         `db:"id"`
	Team       string         `db:"team"`
	Name       string         `db:"name"`
	SecretType string         `db:"secret_type"`
	Inline     sql.NullString `db:"inline"`
	Reference  string         `db:"reference"`
	Encrypted  bool           `db:"encrypted"`
	Version    int64          `db:"version"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r *queries) secretToModel(row secretRow) (*model.Secret, error) {
	s := &model.Secret{
		ID:        model.SecretID(row.ID),
		Team:      row.Team,
		Name:      row.Name,
		Type:      model.SecretType(row.SecretType),
		Reference: row.Reference,
		Version:   row.Version,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
	if !row.Inline.Valid || row.Inline.String == "" {
		return s, nil
	}

	raw := []byte(row.Inline.String)
	if row.Encrypted {
		if r.cipher == nil {
			return nil, errs.Internal(nil, "secret %q is encrypted but no cipher key is configured", row.Name)
		}
		plain, err := r.cipher.open(row.Inline.String)
		if err != nil {
			return nil, err
		}
		raw = plain
	}
	s.Inline = &model.InlineSecret{}
	if err := json.Unmarshal(raw, s.Inline); err != nil {
		return nil, errs.Internal(err, "decoding secret %q material", row.Name)
	}
	return s, nil
}

// sealInline serializes inline material, encrypting it when a cipher key is
// configured.
func (r *queries) sealInline(inline *model.InlineSecret) (value sql.NullString, encrypted bool, err error) {
	if inline == nil {
		return sql.NullString{}, false, nil
	}
	raw := model.MustEncode(inline)
	if r.cipher == nil {
		return sql.NullString{String: string(raw), Valid: true}, false, nil
	}
	sealed, err := r.cipher.seal(raw)
	if err != nil {
		return sql.NullString{}, false, err
	}
	return sql.NullString{String: sealed, Valid: true}, true, nil
}

// CreateSecret inserts a new secret, sealing inline material at rest.
func (r *queries) CreateSecret(ctx context.Context, s *model.Secret) error {
	inline, encrypted, err := r.sealInline(s.Inline)
	if err != nil {
		return err
	}

	if s.ID == "" {
		s.ID = model.SecretID(model.NewUID())
	}
	ts := now()
	s.Version, s.CreatedAt, s.UpdatedAt = 1, ts, ts

	const insert = `
		INSERT INTO secrets (id, team, name, secret_type, inline, reference, encrypted, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.q.ExecContext(ctx, r.q.Rebind(insert),
		string(s.ID), s.Team, s.Name, string(s.Type), inline, s.Reference, encrypted,
		s.Version, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isConflict(err) {
			return errs.Conflict("secret %q already exists in team %q", s.Name, s.Team)
		}
		return translate(err)
	}
	return nil
}

// GetSecretByID loads one secret by id, with inline material unsealed.
func (r *queries) GetSecretByID(ctx context.Context, id model.SecretID) (*model.Secret, error) {
	var row secretRow
	const query = `SELECT * FROM secrets WHERE id = ?`
	if err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(query), string(id)); err != nil {
		return nil, notFound(err, "secret", string(id))
	}
	return r.secretToModel(row)
}

// GetSecretByName loads one secret by (team, name).
func (r *queries) GetSecretByName(ctx context.Context, team, name string) (*model.Secret, error) {
	var row secretRow
	const query = `SELECT * FROM secrets WHERE team = ? AND name = ?`
	if err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(query), team, name); err != nil {
		return nil, notFound(err, "secret", fmt.Sprintf("%s/%s", team, name))
	}
	return r.secretToModel(row)
}

// ListSecrets returns secrets ordered by (created_at, id). An empty team
// lists across teams.
func (r *queries) ListSecrets(ctx context.Context, team string, page model.ListPage) ([]*model.Secret, error) {
	page = page.Clamp()

	query := `SELECT * FROM secrets ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
	args := []any{page.Limit, page.Offset}
	if team != "" {
		query = `SELECT * FROM secrets WHERE team = ? ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
		args = []any{team, page.Limit, page.Offset}
	}

	var rows []secretRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return nil, translate(err)
	}
	out := make([]*model.Secret, 0, len(rows))
	for _, row := range rows {
		s, err := r.secretToModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// UpdateSecret writes the material if the caller's version is current. The
// secret type is immutable.
func (r *queries) UpdateSecret(ctx context.Context, s *model.Secret) error {
	current, err := r.GetSecretByID(ctx, s.ID)
	if err != nil {
		return err
	}
	if current.Type != s.Type {
		return errs.Validation("secret %q type cannot change from %q to %q",
			current.Name, current.Type, s.Type)
	}

	inline, encrypted, err := r.sealInline(s.Inline)
	if err != nil {
		return err
	}

	ts := now()
	const update = `
		UPDATE secrets
		SET inline = ?, reference = ?, encrypted = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`
	res, err := r.q.ExecContext(ctx, r.q.Rebind(update),
		inline, s.Reference, encrypted, ts, string(s.ID), s.Version)
	if err != nil {
		return translate(err)
	}
	if err := r.checkVersionedUpdate(ctx, res, "secrets", string(s.ID), s.Version); err != nil {
		return err
	}
	s.Version++
	s.UpdatedAt = ts
	return nil
}

// DeleteSecret removes a secret unless listeners or clusters still name it
// in their TLS configuration.
func (r *queries) DeleteSecret(ctx context.Context, team, name string) (*model.Secret, error) {
	s, err := r.GetSecretByName(ctx, team, name)
	if err != nil {
		return nil, err
	}

	referents, err := r.secretReferents(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(referents) > 0 {
		return nil, errs.InUse(fmt.Sprintf("secret %q is referenced by %d resource(s)", name, len(referents)), referents)
	}

	const del = `DELETE FROM secrets WHERE id = ?`
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(del), string(s.ID)); err != nil {
		return nil, translate(err)
	}
	return s, nil
}

// secretReferents walks listener and cluster specs for TLS references to
// the named secret. Spec documents are small and few, so a scan is fine.
func (r *queries) secretReferents(ctx context.Context, name string) ([]string, error) {
	var referents []string

	listeners, err := r.ListListeners(ctx, "", model.ListPage{Limit: model.MaxListLimit})
	if err != nil {
		return nil, err
	}
	for _, l := range listeners {
		if tls := l.Spec.TLS; tls != nil && (tls.SecretName == name || tls.ClientCASecretName == name) {
			referents = append(referents, "listener/"+l.Team+"/"+l.Name)
		}
	}

	clusters, err := r.ListClusters(ctx, "", model.ListPage{Limit: model.MaxListLimit})
	if err != nil {
		return nil, err
	}
	for _, c := range clusters {
		if c.Spec.TLS != nil && c.Spec.TLS.SecretName == name {
			referents = append(referents, "cluster/"+c.Team+"/"+c.Name)
		}
	}
	return referents, nil
}
