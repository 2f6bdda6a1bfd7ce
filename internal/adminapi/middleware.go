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
	"net"
	"net/http"
	"strings"

	"github.com/flowplane/flowplane/internal/auth"
	"github.com/flowplane/flowplane/internal/errs"
)

type contextKey int

const actorKey contextKey = iota

// actorFrom returns the authenticated identity, nil on unauthenticated
// routes.
func actorFrom(r *http.Request) *auth.Context {
	actor, _ := r.Context().Value(actorKey).(*auth.Context)
	return actor
}

// authenticate resolves the bearer token and attaches the identity to the
// request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			s.error(w, errs.Unauthenticated("missing bearer token"))
			return
		}
		bearer, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			s.error(w, errs.Unauthenticated("authorization header is not a bearer token"))
			return
		}

		actor, err := s.auth.Authenticate(r.Context(), bearer, clientIP(r), r.UserAgent())
		if err != nil {
			s.error(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

// withTimeout bounds every request by the configured budget. Handlers see
// the deadline through the request context.
func (s *Server) withTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	// The leftmost forwarded address wins when a proxy fronts the API.
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
