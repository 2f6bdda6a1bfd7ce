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
)

// Configuration resources share one handler shape: team from the query,
// name from the path, document in the body. PUT replaces the document at
// the addressed name.

func (s *Server) createCluster(w http.ResponseWriter, r *http.Request) {
	var c model.Cluster
	if err := decode(r, &c); err != nil {
		s.badRequest(w, err)
		return
	}
	if c.Team == "" {
		c.Team = teamParam(r)
	}
	created, err := s.registry.CreateCluster(r.Context(), actorFrom(r), &c)
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusCreated, created)
}

func (s *Server) listClusters(w http.ResponseWriter, r *http.Request) {
	out, err := s.registry.ListClusters(r.Context(), actorFrom(r), r.URL.Query().Get("team"), pageParams(r))
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) getCluster(w http.ResponseWriter, r *http.Request) {
	c, err := s.registry.GetCluster(r.Context(), actorFrom(r), teamParam(r), mux.Vars(r)["name"])
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, c)
}

func (s *Server) updateCluster(w http.ResponseWriter, r *http.Request) {
	var c model.Cluster
	if err := decode(r, &c); err != nil {
		s.badRequest(w, err)
		return
	}
	if c.Team == "" {
		c.Team = teamParam(r)
	}
	c.Name = mux.Vars(r)["name"]
	updated, err := s.registry.UpdateCluster(r.Context(), actorFrom(r), &c)
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, updated)
}

func (s *Server) deleteCluster(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteCluster(r.Context(), actorFrom(r), teamParam(r), mux.Vars(r)["name"]); err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) createListener(w http.ResponseWriter, r *http.Request) {
	var l model.Listener
	if err := decode(r, &l); err != nil {
		s.badRequest(w, err)
		return
	}
	if l.Team == "" {
		l.Team = teamParam(r)
	}
	created, err := s.registry.CreateListener(r.Context(), actorFrom(r), &l)
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusCreated, created)
}

func (s *Server) listListeners(w http.ResponseWriter, r *http.Request) {
	out, err := s.registry.ListListeners(r.Context(), actorFrom(r), r.URL.Query().Get("team"), pageParams(r))
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) getListener(w http.ResponseWriter, r *http.Request) {
	l, err := s.registry.GetListener(r.Context(), actorFrom(r), teamParam(r), mux.Vars(r)["name"])
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, l)
}

func (s *Server) updateListener(w http.ResponseWriter, r *http.Request) {
	var l model.Listener
	if err := decode(r, &l); err != nil {
		s.badRequest(w, err)
		return
	}
	if l.Team == "" {
		l.Team = teamParam(r)
	}
	l.Name = mux.Vars(r)["name"]
	updated, err := s.registry.UpdateListener(r.Context(), actorFrom(r), &l)
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, updated)
}

func (s *Server) deleteListener(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteListener(r.Context(), actorFrom(r), teamParam(r), mux.Vars(r)["name"]); err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) createRouteConfig(w http.ResponseWriter, r *http.Request) {
	var rc model.RouteConfig
	if err := decode(r, &rc); err != nil {
		s.badRequest(w, err)
		return
	}
	if rc.Team == "" {
		rc.Team = teamParam(r)
	}
	created, err := s.registry.CreateRouteConfig(r.Context(), actorFrom(r), &rc)
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusCreated, created)
}

func (s *Server) listRouteConfigs(w http.ResponseWriter, r *http.Request) {
	out, err := s.registry.ListRouteConfigs(r.Context(), actorFrom(r), r.URL.Query().Get("team"), pageParams(r))
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) getRouteConfig(w http.ResponseWriter, r *http.Request) {
	rc, err := s.registry.GetRouteConfig(r.Context(), actorFrom(r), teamParam(r), mux.Vars(r)["name"])
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, rc)
}

func (s *Server) updateRouteConfig(w http.ResponseWriter, r *http.Request) {
	var rc model.RouteConfig
	if err := decode(r, &rc); err != nil {
		s.badRequest(w, err)
		return
	}
	if rc.Team == "" {
		rc.Team = teamParam(r)
	}
	rc.Name = mux.Vars(r)["name"]
	updated, err := s.registry.UpdateRouteConfig(r.Context(), actorFrom(r), &rc)
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, updated)
}

func (s *Server) deleteRouteConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteRouteConfig(r.Context(), actorFrom(r), teamParam(r), mux.Vars(r)["name"]); err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) createFilter(w http.ResponseWriter, r *http.Request) {
	var f model.Filter
	if err := decode(r, &f); err != nil {
		s.badRequest(w, err)
		return
	}
	if f.Team == "" {
		f.Team = teamParam(r)
	}
	created, err := s.registry.CreateFilter(r.Context(), actorFrom(r), &f)
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusCreated, created)
}

func (s *Server) listFilters(w http.ResponseWriter, r *http.Request) {
	out, err := s.registry.ListFilters(r.Context(), actorFrom(r), r.URL.Query().Get("team"), pageParams(r))
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) getFilter(w http.ResponseWriter, r *http.Request) {
	f, err := s.registry.GetFilter(r.Context(), actorFrom(r), teamParam(r), mux.Vars(r)["name"])
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, f)
}

func (s *Server) updateFilter(w http.ResponseWriter, r *http.Request) {
	var f model.Filter
	if err := decode(r, &f); err != nil {
		s.badRequest(w, err)
		return
	}
	if f.Team == "" {
		f.Team = teamParam(r)
	}
	f.Name = mux.Vars(r)["name"]
	updated, err := s.registry.UpdateFilter(r.Context(), actorFrom(r), &f)
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, updated)
}

func (s *Server) deleteFilter(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteFilter(r.Context(), actorFrom(r), teamParam(r), mux.Vars(r)["name"]); err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) attachFilter(w http.ResponseWriter, r *http.Request) {
	var a model.FilterAttachment
	if err := decode(r, &a); err != nil {
		s.badRequest(w, err)
		return
	}
	created, err := s.registry.AttachFilter(r.Context(), actorFrom(r), teamParam(r), &a)
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusCreated, created)
}

func (s *Server) listAttachments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := s.registry.ListAttachments(r.Context(), actorFrom(r), teamParam(r),
		model.AttachmentScope(q.Get("scope")), q.Get("targetId"))
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) detachFilter(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DetachFilter(r.Context(), actorFrom(r), teamParam(r), model.AttachmentID(mux.Vars(r)["id"])); err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) createSecret(w http.ResponseWriter, r *http.Request) {
	var sec model.Secret
	if err := decode(r, &sec); err != nil {
		s.badRequest(w, err)
		return
	}
	if sec.Team == "" {
		sec.Team = teamParam(r)
	}
	created, err := s.registry.CreateSecret(r.Context(), actorFrom(r), &sec)
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusCreated, created.Redacted())
}

func (s *Server) listSecrets(w http.ResponseWriter, r *http.Request) {
	out, err := s.registry.ListSecrets(r.Context(), actorFrom(r), r.URL.Query().Get("team"), pageParams(r))
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) getSecret(w http.ResponseWriter, r *http.Request) {
	sec, err := s.registry.GetSecret(r.Context(), actorFrom(r), teamParam(r), mux.Vars(r)["name"])
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, sec)
}

func (s *Server) updateSecret(w http.ResponseWriter, r *http.Request) {
	var sec model.Secret
	if err := decode(r, &sec); err != nil {
		s.badRequest(w, err)
		return
	}
	if sec.Team == "" {
		sec.Team = teamParam(r)
	}
	sec.Name = mux.Vars(r)["name"]
	updated, err := s.registry.UpdateSecret(r.Context(), actorFrom(r), &sec)
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, updated.Redacted())
}

func (s *Server) deleteSecret(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteSecret(r.Context(), actorFrom(r), teamParam(r), mux.Vars(r)["name"]); err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}
