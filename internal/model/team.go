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
	"fmt"
	"regexp"
	"time"

	"github.com/flowplane/flowplane/internal/errs"
)

// TeamStatus is the lifecycle state of a team.
type TeamStatus string

const (
	TeamActive    TeamStatus = "active"
	TeamSuspended TeamStatus = "suspended"
	TeamArchived  TeamStatus = "archived"
)

// Validate returns an error for unknown statuses.
func (s TeamStatus) Validate() error {
	switch s {
	case TeamActive, TeamSuspended, TeamArchived:
		return nil
	default:
		return errs.Validation("unknown team status %q", string(s))
	}
}

// CanTransitionTo reports whether the status may move to next. Archived is
// terminal; active and suspended flip freely and either may archive.
func (s TeamStatus) CanTransitionTo(next TeamStatus) bool {
	if s == TeamArchived {
		return false
	}
	return next.Validate() == nil
}

// DefaultTeam owns the seeded shared gateway resources.
const DefaultTeam = "default"

// Team is a tenancy boundary. All named resources are scoped to a team, and
// an archived team refuses new resources.
type Team struct {
	ID          TeamID     `json:"id"`
	Name        string     `json:"name"`
	DisplayName string     `json:"displayName,omitempty"`
	Status      TeamStatus `json:"status"`
	Owner       string     `json:"owner,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Version     int64      `json:"version"`
}

/// Resource names and team names share one grammar: DNS-label-like, so they
// can be embedded in Envoy resource names and node identifiers verbatim.
var nameRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// ValidateName rejects names that cannot appear in Envoy resource names.
func ValidateName(kind, name string) error {
	if name == "" {
		return errs.Validation("%s name must not be empty", kind)
	}
	if !nameRe.MatchString(name) {
		return errs.Validation("%s name %q must be a lowercase DNS label (max 63 chars)", kind, name)
	}
	return nil
}

// Validate checks the team document.
func (t *Team) Validate() error {
	if err := ValidateName("team", t.Name); err != nil {
		return err
	}
	if err := t.Status.Validate(); err != nil {
		return fmt.Errorf("team %q: %w", t.Name, err)
	}
	return nil
}
