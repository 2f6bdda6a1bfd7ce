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

package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/flowplane/internal/auth"
	"github.com/flowplane/flowplane/internal/envoy"
	"github.com/flowplane/flowplane/internal/fixture"
	"github.com/flowplane/flowplane/internal/hub"
	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/platform"
	"github.com/flowplane/flowplane/internal/service"
	"github.com/flowplane/flowplane/internal/store"
)

type harness struct {
	router *mux.Router
	auth   *auth.Service
	bearer string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := fixture.NewTestLogger(t)
	ctx := context.Background()

	st, err := store.OpenMemory(ctx, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.RunMigrations(ctx))
	require.NoError(t, st.EnsureDefaults(ctx))

	h := hub.New(log)
	authSvc := auth.NewService(log, st)
	registry := service.NewRegistry(log, st, h)
	mat := platform.NewMaterializer(log, st, h)

	bearer, err := authSvc.CreateToken(ctx, nil, &model.PersonalAccessToken{
		Name:   "test-admin",
		Scopes: []string{auth.ScopeAdminAll},
	})
	require.NoError(t, err)

	base := envoy.BootstrapConfig{XDSAddress: "xds.test", XDSPort: 18000}
	srv := NewServer(log, registry, authSvc, mat, base, 0)
	return &harness{router: srv.Router(), auth: authSvc, bearer: bearer}
}

// do runs one request through the router. An empty bearer sends no
// Authorization header.
func (h *harness) do(t *testing.T, method, path, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if bearer != "" {
		r.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthIsPublic(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func TestMissingOrInvalidBearer(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/api/v1/clusters", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthenticated", decodeBody(t, w)["code"])

	w = h.do(t, http.MethodGet, "/api/v1/clusters", "fp_pat_bogus.bogus", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClusterLifecycle(t *testing.T) {
	h := newHarness(t)
	body := `{"name":"payments-api","spec":{"endpoints":[{"host":"10.0.0.1","port":8080}]}}`

	w := h.do(t, http.MethodPost, "/api/v1/clusters", h.bearer, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody(t, w)
	assert.Equal(t, "payments-api", created["name"])
	assert.Equal(t, model.DefaultTeam, created["team"])
	assert.NotEmpty(t, created["id"])

	// Duplicate name conflicts.
	w = h.do(t, http.MethodPost, "/api/v1/clusters", h.bearer, body)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decodeBody(t, w)["code"])

	w = h.do(t, http.MethodGet, "/api/v1/clusters/payments-api", h.bearer, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "payments-api", decodeBody(t, w)["name"])

	w = h.do(t, http.MethodPut, "/api/v1/clusters/payments-api", h.bearer,
		`{"spec":{"endpoints":[{"host":"10.0.0.2","port":8080}]}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(t, http.MethodDelete, "/api/v1/clusters/payments-api", h.bearer, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(t, http.MethodGet, "/api/v1/clusters/payments-api", h.bearer, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeBody(t, w)["code"])
}

func TestValidationStatuses(t *testing.T) {
	h := newHarness(t)

	// Malformed JSON is a 400; a well-formed but invalid document is 422.
	w := h.do(t, http.MethodPost, "/api/v1/clusters", h.bearer, `{"name":`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPost, "/api/v1/clusters", h.bearer,
		`{"name":"NoUppercase","spec":{"endpoints":[{"host":"10.0.0.1","port":80}]}}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "validation", decodeBody(t, w)["code"])

	// Unknown fields are rejected outright.
	w = h.do(t, http.MethodPost, "/api/v1/clusters", h.bearer,
		`{"name":"ok","bogus":true,"spec":{"endpoints":[{"host":"10.0.0.1","port":80}]}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScopeEnforcement(t *testing.T) {
	h := newHarness(t)

	reader, err := h.auth.CreateToken(context.Background(), nil, &model.PersonalAccessToken{
		Name:   "read-only",
		Scopes: []string{"clusters:read"},
	})
	require.NoError(t, err)

	w := h.do(t, http.MethodGet, "/api/v1/clusters", reader, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodPost, "/api/v1/clusters", reader,
		`{"name":"denied","spec":{"endpoints":[{"host":"10.0.0.1","port":80}]}}`)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", decodeBody(t, w)["code"])
}

func TestTokenRotationInvalidatesOldSecret(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/v1/tokens", h.bearer,
		`{"name":"ci-deployer","scopes":["clusters:read"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody(t, w)
	old, _ := created["token"].(string)
	require.True(t, strings.HasPrefix(old, "fp_pat_"), old)
	id, _ := created["id"].(string)

	w = h.do(t, http.MethodGet, "/api/v1/clusters", old, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodPost, "/api/v1/tokens/"+id+"/rotate", h.bearer, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rotated, _ := decodeBody(t, w)["token"].(string)
	require.NotEqual(t, old, rotated)

	w = h.do(t, http.MethodGet, "/api/v1/clusters", old, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	w = h.do(t, http.MethodGet, "/api/v1/clusters", rotated, "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestScopesEndpoints(t *testing.T) {
	h := newHarness(t)

	// The UI listing is public.
	w := h.do(t, http.MethodGet, "/api/v1/scopes", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/api/v1/admin/scopes", h.bearer, "")
	require.Equal(t, http.StatusOK, w.Code)

	reader, err := h.auth.CreateToken(context.Background(), nil, &model.PersonalAccessToken{
		Name:   "non-admin",
		Scopes: []string{"clusters:read"},
	})
	require.NoError(t, err)
	w = h.do(t, http.MethodGet, "/api/v1/admin/scopes", reader, "")
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestTeamStatusTransitions(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/v1/teams", h.bearer, `{"name":"payments"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = h.do(t, http.MethodPatch, "/api/v1/teams/payments", h.bearer, `{"status":"suspended"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(t, http.MethodPatch, "/api/v1/teams/payments", h.bearer, `{"status":"archived"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// Archived is terminal.
	w = h.do(t, http.MethodPatch, "/api/v1/teams/payments", h.bearer, `{"status":"active"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAPIDefinitionBootstrapEndpoint(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/v1/api-definitions", h.bearer, `{
		"domain": "orders.example.com",
		"routes": [{
			"pathType": "prefix",
			"path": "/orders",
			"upstream": {"host": "orders.internal", "port": 8443}
		}]
	}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody(t, w)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "/api/v1/api-definitions/"+id+"/bootstrap", created["bootstrapUri"])

	w = h.do(t, http.MethodGet, "/api/v1/api-definitions/"+id+"/bootstrap", h.bearer, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "flowplane-xds")

	w = h.do(t, http.MethodGet, "/api/v1/api-definitions/"+id+"/bootstrap?format=json", h.bearer, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	w = h.do(t, http.MethodGet, "/api/v1/api-definitions/"+id+"/bootstrap?format=xml", h.bearer, "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRouteCollisionOnAppend(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/v1/api-definitions", h.bearer, `{
		"domain": "api.example.com",
		"routes": [{
			"pathType": "prefix",
			"path": "/v1/",
			"upstream": {"host": "api.internal", "port": 8080}
		}]
	}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id, _ := decodeBody(t, w)["id"].(string)

	w = h.do(t, http.MethodPost, "/api/v1/api-definitions/"+id+"/routes", h.bearer, `{
		"pathType": "prefix",
		"path": "/v1/",
		"upstream": {"host": "api.internal", "port": 8080}
	}`)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = h.do(t, http.MethodPost, "/api/v1/api-definitions/"+id+"/routes", h.bearer, `{
		"pathType": "prefix",
		"path": "/v2/",
		"upstream": {"host": "api.internal", "port": 8080}
	}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	appended := decodeBody(t, w)
	assert.NotEmpty(t, appended["routeId"])
}

func TestAuditLogIsAdminOnly(t *testing.T) {
	h := newHarness(t)

	reader, err := h.auth.CreateToken(context.Background(), nil, &model.PersonalAccessToken{
		Name:   "curious",
		Scopes: []string{"clusters:read"},
	})
	require.NoError(t, err)

	w := h.do(t, http.MethodGet, "/api/v1/audit-logs", reader, "")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(t, http.MethodGet, "/api/v1/audit-logs?action=auth.token.authenticated", h.bearer, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	events, _ := body["events"].([]any)
	assert.NotEmpty(t, events)
}
