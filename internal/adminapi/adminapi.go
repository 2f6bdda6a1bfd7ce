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

// Package adminapi is the REST boundary of the control plane. Handlers
// decode and authenticate, the service layer decides; errors surface as a
// {code, message, details?} envelope with the status mapping of the error
// taxonomy.
package adminapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/flowplane/flowplane/internal/auth"
	"github.com/flowplane/flowplane/internal/envoy"
	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/platform"
	"github.com/flowplane/flowplane/internal/service"
)

// DefaultRequestTimeout bounds a single admin request.
const DefaultRequestTimeout = 15 * time.Second

// Server wires the admin REST surface.
type Server struct {
	registry *service.Registry
	auth     *auth.Service
	platform *platform.Materializer

	// bootstrap carries the advertised xDS endpoint baked into rendered
	// bootstrap documents.
	bootstrap envoy.BootstrapConfig

	requestTimeout time.Duration

	logrus.FieldLogger
}

// NewServer returns the admin API server. A zero requestTimeout takes the
// default.
func NewServer(log logrus.FieldLogger, registry *service.Registry, authSvc *auth.Service, mat *platform.Materializer, bootstrap envoy.BootstrapConfig, requestTimeout time.Duration) *Server {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &Server{
		registry:       registry,
		auth:           authSvc,
		platform:       mat,
		bootstrap:      bootstrap,
		requestTimeout: requestTimeout,
		FieldLogger:    log.WithField("context", "adminapi"),
	}
}

// Router assembles the route table. Everything under /api/v1 requires a
// bearer token except the public scope listing; /health is open.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.withTimeout)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/scopes", s.listScopes).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authenticate)

	api.HandleFunc("/admin/scopes", s.listAllScopes).Methods(http.MethodGet)

	api.HandleFunc("/tokens", s.createToken).Methods(http.MethodPost)
	api.HandleFunc("/tokens", s.listTokens).Methods(http.MethodGet)
	api.HandleFunc("/tokens/{id}", s.getToken).Methods(http.MethodGet)
	api.HandleFunc("/tokens/{id}", s.updateToken).Methods(http.MethodPatch)
	api.HandleFunc("/tokens/{id}", s.deleteToken).Methods(http.MethodDelete)
	api.HandleFunc("/tokens/{id}/rotate", s.rotateToken).Methods(http.MethodPost)

	api.HandleFunc("/teams", s.createTeam).Methods(http.MethodPost)
	api.HandleFunc("/teams", s.listTeams).Methods(http.MethodGet)
	api.HandleFunc("/teams/{name}", s.getTeam).Methods(http.MethodGet)
	api.HandleFunc("/teams/{name}", s.updateTeam).Methods(http.MethodPatch)
	api.HandleFunc("/teams/{name}/bootstrap", s.teamBootstrap).Methods(http.MethodGet)

	api.HandleFunc("/clusters", s.createCluster).Methods(http.MethodPost)
	api.HandleFunc("/clusters", s.listClusters).Methods(http.MethodGet)
	api.HandleFunc("/clusters/{name}", s.getCluster).Methods(http.MethodGet)
	api.HandleFunc("/clusters/{name}", s.updateCluster).Methods(http.MethodPut)
	api.HandleFunc("/clusters/{name}", s.deleteCluster).Methods(http.MethodDelete)

	api.HandleFunc("/listeners", s.createListener).Methods(http.MethodPost)
	api.HandleFunc("/listeners", s.listListeners).Methods(http.MethodGet)
	api.HandleFunc("/listeners/{name}", s.getListener).Methods(http.MethodGet)
	api.HandleFunc("/listeners/{name}", s.updateListener).Methods(http.MethodPut)
	api.HandleFunc("/listeners/{name}", s.deleteListener).Methods(http.MethodDelete)

	api.HandleFunc("/route-configs", s.createRouteConfig).Methods(http.MethodPost)
	api.HandleFunc("/route-configs", s.listRouteConfigs).Methods(http.MethodGet)
	api.HandleFunc("/route-configs/{name}", s.getRouteConfig).Methods(http.MethodGet)
	api.HandleFunc("/route-configs/{name}", s.updateRouteConfig).Methods(http.MethodPut)
	api.HandleFunc("/route-configs/{name}", s.deleteRouteConfig).Methods(http.MethodDelete)

	api.HandleFunc("/filters", s.createFilter).Methods(http.MethodPost)
	api.HandleFunc("/filters", s.listFilters).Methods(http.MethodGet)
	api.HandleFunc("/filters/{name}", s.getFilter).Methods(http.MethodGet)
	api.HandleFunc("/filters/{name}", s.updateFilter).Methods(http.MethodPut)
	api.HandleFunc("/filters/{name}", s.deleteFilter).Methods(http.MethodDelete)

	api.HandleFunc("/filter-attachments", s.attachFilter).Methods(http.MethodPost)
	api.HandleFunc("/filter-attachments", s.listAttachments).Methods(http.MethodGet)
	api.HandleFunc("/filter-attachments/{id}", s.detachFilter).Methods(http.MethodDelete)

	api.HandleFunc("/secrets", s.createSecret).Methods(http.MethodPost)
	api.HandleFunc("/secrets", s.listSecrets).Methods(http.MethodGet)
	api.HandleFunc("/secrets/{name}", s.getSecret).Methods(http.MethodGet)
	api.HandleFunc("/secrets/{name}", s.updateSecret).Methods(http.MethodPut)
	api.HandleFunc("/secrets/{name}", s.deleteSecret).Methods(http.MethodDelete)

	api.HandleFunc("/api-definitions", s.createAPIDefinition).Methods(http.MethodPost)
	api.HandleFunc("/api-definitions", s.listAPIDefinitions).Methods(http.MethodGet)
	api.HandleFunc("/api-definitions/from-openapi", s.importOpenAPI).Methods(http.MethodPost)
	api.HandleFunc("/api-definitions/{id}", s.getAPIDefinition).Methods(http.MethodGet)
	api.HandleFunc("/api-definitions/{id}", s.deleteAPIDefinition).Methods(http.MethodDelete)
	api.HandleFunc("/api-definitions/{id}/routes", s.appendRoute).Methods(http.MethodPost)
	api.HandleFunc("/api-definitions/{id}/bootstrap", s.apiBootstrap).Methods(http.MethodGet)

	api.HandleFunc("/audit-logs", s.listAuditLogs).Methods(http.MethodGet)

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listScopes(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]any{"scopes": auth.UIScopes()})
}

func (s *Server) listAllScopes(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if !actor.IsAdmin() {
		s.error(w, errForbiddenAdmin())
		return
	}
	respond(w, http.StatusOK, map[string]any{"scopes": auth.AllScopes()})
}

// teamParam resolves the team a name-addressed resource request operates
// on. Requests outside the default team pass ?team=.
func teamParam(r *http.Request) string {
	if team := r.URL.Query().Get("team"); team != "" {
		return team
	}
	return model.DefaultTeam
}

// pageParams reads limit/offset; the repository clamps them.
func pageParams(r *http.Request) model.ListPage {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return model.ListPage{Limit: limit, Offset: offset}
}
