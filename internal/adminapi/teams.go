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
	"net/http"

	"github.com/gorilla/mux"

	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/platform"
)

func (s *Server) createTeam(w http.ResponseWriter, r *http.Request) {
	var team model.Team
	if err := decode(r, &team); err != nil {
		s.badRequest(w, err)
		return
	}
	created, err := s.registry.CreateTeam(r.Context(), actorFrom(r), &team)
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusCreated, created)
}

func (s *Server) listTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := s.registry.ListTeams(r.Context(), actorFrom(r), pageParams(r))
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, teams)
}

func (s *Server) getTeam(w http.ResponseWriter, r *http.Request) {
	team, err := s.registry.GetTeam(r.Context(), actorFrom(r), mux.Vars(r)["name"])
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, team)
}

func (s *Server) updateTeam(w http.ResponseWriter, r *http.Request) {
	team, err := s.registry.GetTeam(r.Context(), actorFrom(r), mux.Vars(r)["name"])
	if err != nil {
		s.error(w, err)
		return
	}
	// Patch semantics over the stored document; the name in the path wins.
	name := team.Name
	if err := decode(r, team); err != nil {
		s.badRequest(w, err)
		return
	}
	team.Name = name

	updated, err := s.registry.UpdateTeam(r.Context(), actorFrom(r), team)
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, updated)
}

// bootstrapRequest reads the rendering knobs shared by the bootstrap
// endpoints.
func bootstrapRequest(r *http.Request) platform.BootstrapRequest {
	q := r.URL.Query()
	req := platform.BootstrapRequest{
		Format: q.Get("format"),
		Scope:  q.Get("scope"),
	}
	if raw := q.Get("include_default"); raw != "" {
		include := raw == "true" || raw == "1"
		req.IncludeDefault = &include
	}
	return req
}

func bootstrapContentType(format string) string {
	if format == platform.BootstrapFormatJSON {
		return "application/json"
	}
	return "application/yaml"
}

func (s *Server) teamBootstrap(w http.ResponseWriter, r *http.Request) {
	req := bootstrapRequest(r)
	doc, err := s.platform.TeamBootstrap(r.Context(), actorFrom(r), mux.Vars(r)["name"], s.bootstrap, req)
	if err != nil {
		s.error(w, err)
		return
	}
	w.Header().Set("Content-Type", bootstrapContentType(req.Format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
