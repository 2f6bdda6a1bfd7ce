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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flowplane/flowplane/internal/errs"
)

// errorBody is the envelope every failed request carries.
type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func statusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusUnprocessableEntity
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict, errs.KindInUse:
		return http.StatusConflict
	case errs.KindForbidden:
		return http.StatusForbidden
	case errs.KindUnauthenticated:
		return http.StatusUnauthorized
	case errs.KindTimeout:
		return http.StatusGatewayTimeout
	case errs.KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// error maps a classified error onto the wire. Internal causes are logged,
// never surfaced.
func (s *Server) error(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	message := err.Error()
	var classified *errs.Error
	if errors.As(err, &classified) {
		// The bare message; the kind already travels as the code.
		message = classified.Message
	}
	body := errorBody{
		Code:    kind.String(),
		Message: message,
		Details: errs.DetailsOf(err),
	}
	if kind == errs.KindInternal {
		s.WithError(err).Error("request failed")
		body.Message = "internal error"
	}
	respond(w, statusOf(err), body)
}

// badRequest reports a syntactically malformed request body.
func (s *Server) badRequest(w http.ResponseWriter, err error) {
	respond(w, http.StatusBadRequest, errorBody{
		Code:    "validation",
		Message: err.Error(),
	})
}

// decode parses a JSON request body, rejecting unknown fields.
func decode(r *http.Request, into any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(into)
}

func errForbiddenAdmin() error {
	return errs.Forbidden("scope %q is required", "admin:all")
}
