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

// Snapshot is a consistent read of everything the resource compiler needs.
// Version is the global configuration version the snapshot was taken at.
type Snapshot struct {
	Version      uint64
	Clusters     []*Cluster
	Listeners    []*Listener
	RouteConfigs []*RouteConfig
	Filters      []*Filter
	Attachments  []*FilterAttachment
	Secrets      []*Secret
}

// FilterByID returns the filter with the given id, or nil.
func (s *Snapshot) FilterByID(id FilterID) *Filter {
	for _, f := range s.Filters {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// RouteConfigByName returns the route configuration visible under the given
// name, or nil.
func (s *Snapshot) RouteConfigByName(name string) *RouteConfig {
	for _, rc := range s.RouteConfigs {
		if rc.Name == name {
			return rc
		}
	}
	return nil
}

// ClusterByName returns the cluster with the given name, or nil.
func (s *Snapshot) ClusterByName(name string) *Cluster {
	for _, c := range s.Clusters {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// SecretByName returns the secret with the given name, or nil.
func (s *Snapshot) SecretByName(name string) *Secret {
	for _, sec := range s.Secrets {
		if sec.Name == name {
			return sec
		}
	}
	return nil
}

// AttachmentsFor returns the attachments bound to the given scope and
// target, in attachment order. Ties break on filter name through the
// compiler's sorting.
func (s *Snapshot) AttachmentsFor(scope AttachmentScope, targetID string) []*FilterAttachment {
	var out []*FilterAttachment
	for _, a := range s.Attachments {
		if a.Scope == scope && a.TargetID == targetID {
			out = append(out, a)
		}
	}
	return out
}

// ListPage bounds a repository listing. The repository clamps Limit into
// [1, 1000] with a default of 50 and never interprets a zero offset as
// unset.
type ListPage struct {
	Limit  int
	Offset int
}

const (
	// DefaultListLimit applies when a page asks for no explicit limit.
	DefaultListLimit = 50
	// MaxListLimit caps any page size.
	MaxListLimit = 1000
)

// Clamp normalizes the page per repository contract.
func (p ListPage) Clamp() ListPage {
	out := p
	if out.Limit <= 0 {
		out.Limit = DefaultListLimit
	}
	if out.Limit > MaxListLimit {
		out.Limit = MaxListLimit
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out
}
