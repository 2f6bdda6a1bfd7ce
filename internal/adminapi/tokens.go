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
	"time"

	"github.com/gorilla/mux"

	"github.com/flowplane/flowplane/internal/auth"
	"github.com/flowplane/flowplane/internal/model"
)

type createTokenRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Scopes      []string   `json:"scopes"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// tokenResponse carries the bearer string exactly once, on create and
// rotate.
type tokenResponse struct {
	Token string `json:"token,omitempty"`
	*model.PersonalAccessToken
}

func (s *Server) createToken(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if err := auth.Authorize(actor, "tokens:write", ""); err != nil {
		s.error(w, err)
		return
	}

	var req createTokenRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	tok := &model.PersonalAccessToken{
		Name:        req.Name,
		Description: req.Description,
		Scopes:      req.Scopes,
		ExpiresAt:   req.ExpiresAt,
	}
	bearer, err := s.auth.CreateToken(r.Context(), actor, tok)
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusCreated, tokenResponse{Token: bearer, PersonalAccessToken: tok})
}

func (s *Server) listTokens(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if err := auth.Authorize(actor, "tokens:read", ""); err != nil {
		s.error(w, err)
		return
	}
	tokens, err := s.auth.ListTokens(r.Context(), pageParams(r))
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, tokens)
}

func (s *Server) getToken(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if err := auth.Authorize(actor, "tokens:read", ""); err != nil {
		s.error(w, err)
		return
	}
	tok, err := s.auth.GetToken(r.Context(), model.TokenID(mux.Vars(r)["id"]))
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, tok)
}

func (s *Server) updateToken(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if err := auth.Authorize(actor, "tokens:write", ""); err != nil {
		s.error(w, err)
		return
	}

	tok, err := s.auth.GetToken(r.Context(), model.TokenID(mux.Vars(r)["id"]))
	if err != nil {
		s.error(w, err)
		return
	}
	// Patch semantics: absent fields keep their stored values.
	if err := decode(r, tok); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := s.auth.UpdateToken(r.Context(), actor, tok); err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, tok)
}

func (s *Server) deleteToken(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if err := auth.Authorize(actor, "tokens:write", ""); err != nil {
		s.error(w, err)
		return
	}
	if err := s.auth.DeleteToken(r.Context(), actor, model.TokenID(mux.Vars(r)["id"])); err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) rotateToken(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if err := auth.Authorize(actor, "tokens:write", ""); err != nil {
		s.error(w, err)
		return
	}
	id := model.TokenID(mux.Vars(r)["id"])
	bearer, err := s.auth.RotateToken(r.Context(), actor, id)
	if err != nil {
		s.error(w, err)
		return
	}
	tok, err := s.auth.GetToken(r.Context(), id)
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, tokenResponse{Token: bearer, PersonalAccessToken: tok})
}
