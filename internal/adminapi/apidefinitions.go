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
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/platform"
)

// maxOpenAPIBytes bounds an imported document.
const maxOpenAPIBytes = 4 << 20

func (s *Server) createAPIDefinition(w http.ResponseWriter, r *http.Request) {
	var d model.APIDefinition
	if err := decode(r, &d); err != nil {
		s.badRequest(w, err)
		return
	}
	if d.Team == "" {
		d.Team = teamParam(r)
	}
	created, err := s.platform.Create(r.Context(), actorFrom(r), &d)
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusCreated, created)
}

func (s *Server) listAPIDefinitions(w http.ResponseWriter, r *http.Request) {
	out, err := s.platform.List(r.Context(), actorFrom(r), r.URL.Query().Get("team"), pageParams(r))
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) getAPIDefinition(w http.ResponseWriter, r *http.Request) {
	d, err := s.platform.Get(r.Context(), actorFrom(r), model.APIDefinitionID(mux.Vars(r)["id"]))
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, d)
}

func (s *Server) deleteAPIDefinition(w http.ResponseWriter, r *http.Request) {
	if err := s.platform.Delete(r.Context(), actorFrom(r), model.APIDefinitionID(mux.Vars(r)["id"])); err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

// importOpenAPI accepts an OpenAPI document (JSON or YAML) verbatim and
// materializes the definition it describes.
func (s *Server) importOpenAPI(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxOpenAPIBytes))
	if err != nil {
		s.badRequest(w, err)
		return
	}
	d, err := platform.ImportOpenAPI(data, teamParam(r))
	if err != nil {
		s.error(w, err)
		return
	}
	created, err := s.platform.Create(r.Context(), actorFrom(r), d)
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusCreated, created)
}

func (s *Server) appendRoute(w http.ResponseWriter, r *http.Request) {
	var route model.APIRoute
	if err := decode(r, &route); err != nil {
		s.badRequest(w, err)
		return
	}
	routeID, revision, err := s.platform.AppendRoute(r.Context(), actorFrom(r), model.APIDefinitionID(mux.Vars(r)["id"]), &route)
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusCreated, map[string]any{
		"routeId":  routeID,
		"revision": revision,
	})
}

func (s *Server) apiBootstrap(w http.ResponseWriter, r *http.Request) {
	req := bootstrapRequest(r)
	doc, err := s.platform.Bootstrap(r.Context(), actorFrom(r), model.APIDefinitionID(mux.Vars(r)["id"]), s.bootstrap, req)
	if err != nil {
		s.error(w, err)
		return
	}
	w.Header().Set("Content-Type", bootstrapContentType(req.Format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
