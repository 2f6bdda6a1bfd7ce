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

package model

import (
	"encoding/json"
	"time"
)

// Audit action names. Configuration writes use "<resource>.<verb>"; token
// lifecycle events use the "auth.token." prefix.
const (
	AuditTokenSeeded        = "auth.token.seeded"
	AuditTokenCreated       = "auth.token.created"
	AuditTokenAuthenticated = "auth.token.authenticated"
	AuditTokenRotated       = "auth.token.rotated"
	AuditTokenRevoked       = "auth.token.revoked"
	AuditTokenUpdated       = "auth.token.updated"
	AuditTokenExpired       = "auth.token.expired"
)

// AuditEvent is one append-only audit log row. Old and New snapshots carry
// redacted JSON representations of the resource around a write.
type AuditEvent struct {
	ID           AuditID         `json:"id"`
	OccurredAt   time.Time       `json:"occurredAt"`
	Actor        string          `json:"actor"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	Old          json.RawMessage `json:"old,omitempty"`
	New          json.RawMessage `json:"new,omitempty"`
	ClientIP     string          `json:"clientIp,omitempty"`
	UserAgent    string          `json:"userAgent,omitempty"`
}

// AuditFilter narrows audit log listings.
type AuditFilter struct {
	ResourceType string
	ResourceID   string
	Actor        string
	Action       string
	Since        *time.Time
	Until        *time.Time
}
