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

// Package xds holds the pieces shared by the delivery engine and the
// resource caches: the cache interface, content hashing and the stream
// counter.
package xds

import (
	"google.golang.org/protobuf/proto"
)

// VersionedResource pairs one compiled resource with its content version.
type VersionedResource struct {
	Name    string
	Version string
	Message proto.Message
}

// Resource is a source of compiled resources of one type URL.
type Resource interface {
	// TypeURL returns the type URL of messages returned from Contents.
	TypeURL() string

	// Contents returns the full current resource set.
	Contents() []VersionedResource

	// Query returns exactly the named resources, in request order,
	// skipping names with no entry.
	Query(names []string) []VersionedResource
}
