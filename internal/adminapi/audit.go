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

	"github.com/flowplane/flowplane/internal/model"
)

func (s *Server) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.AuditFilter{
		ResourceType: q.Get("resourceType"),
		ResourceID:   q.Get("resourceId"),
		Actor:        q.Get("actor"),
		Action:       q.Get("action"),
	}
	if since, err := timeParam(q.Get("since")); err != nil {
		s.badRequest(w, err)
		return
	} else if since != nil {
		filter.Since = since
	}
	if until, err := timeParam(q.Get("until")); err != nil {
		s.badRequest(w, err)
		return
	} else if until != nil {
		filter.Until = until
	}

	events, err := s.registry.ListAuditLogs(r.Context(), actorFrom(r), filter, pageParams(r))
	if err != nil {
		s.error(w, err)
		return
	}
	total, err := s.registry.CountAuditLogs(r.Context(), actorFrom(r), filter)
	if err != nil {
		s.error(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
	})
}

func timeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
