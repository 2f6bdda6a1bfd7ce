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

// Package model holds the control plane's domain types: the entities the
// repository persists, the typed configuration documents embedded in them,
// and the snapshot the resource compiler consumes. Validation lives next to
// the types so every boundary applies the same rules.
package model

import (
	"github.com/google/uuid"
)

// Typed identifiers keep foreign keys from crossing entity boundaries
// silently. All are UUID-backed strings.
type (
	TeamID          string
	ClusterID       string
	ListenerID      string
	RouteConfigID   string
	VirtualHostID   string
	RouteID         string
	FilterID        string
	AttachmentID    string
	SecretID        string
	APIDefinitionID string
	TokenID         string
	AuditID         string
)

// NewUID returns a fresh UUIDv4 string. Entity constructors wrap it in
// their typed ID.
func NewUID() string { return uuid.NewString() }

// ValidUID reports whether s parses as a UUID.
func ValidUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
