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

// Package v3 holds the per-type caches the delivery engine serves from.
// Each cache stores the latest compiled resources of one type URL keyed by
// name, each entry carrying its content version.
package v3

import (
	"sort"
	"sync"

	resource "github.com/envoyproxy/go-control-plane/pkg/resource/v3"
	"google.golang.org/protobuf/proto"

	envoy_v3 "github.com/flowplane/flowplane/internal/envoy/v3"
	"github.com/flowplane/flowplane/internal/sorter"
	"github.com/flowplane/flowplane/internal/xds"
)

// Cache holds the current resources of one type URL.
type Cache struct {
	mu      sync.RWMutex
	typeURL string
	entries map[string]xds.VersionedResource
	names   []string
}

// NewCache creates an empty cache for the given type URL.
func NewCache(typeURL string) *Cache {
	return &Cache{
		typeURL: typeURL,
		entries: map[string]xds.VersionedResource{},
	}
}

// TypeURL implements xds.Resource.
func (c *Cache) TypeURL() string { return c.typeURL }

// Update replaces the cache contents. Resources keep their previous version
// string when their serialized form is unchanged, by construction of the
// content hash.
func (c *Cache) Update(messages []proto.Message) {
	entries := make(map[string]xds.VersionedResource, len(messages))
	names := make([]string, 0, len(messages))
	for _, msg := range messages {
		name := sorter.ResourceName(msg)
		entries[name] = xds.VersionedResource{
			Name:    name,
			Version: xds.HashProto(msg),
			Message: msg,
		}
		names = append(names, name)
	}
	sort.Strings(names)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
	c.names = names
}

// Contents implements xds.Resource.
func (c *Cache) Contents() []xds.VersionedResource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]xds.VersionedResource, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.entries[name])
	}
	return out
}

// Query implements xds.Resource.
func (c *Cache) Query(names []string) []xds.VersionedResource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []xds.VersionedResource
	for _, name := range names {
		if entry, ok := c.entries[name]; ok {
			out = append(out, entry)
		}
	}
	return out
}

// Caches bundles one cache per served type URL.
type Caches struct {
	Clusters  *Cache
	Endpoints *Cache
	Listeners *Cache
	Routes    *Cache
	Secrets   *Cache
}

// NewCaches creates the full cache set.
func NewCaches() *Caches {
	return &Caches{
		Clusters:  NewCache(resource.ClusterType),
		Endpoints: NewCache(resource.EndpointType),
		Listeners: NewCache(resource.ListenerType),
		Routes:    NewCache(resource.RouteType),
		Secrets:   NewCache(resource.SecretType),
	}
}

// Update replaces all caches from one compiled snapshot.
func (c *Caches) Update(res *envoy_v3.Resources) {
	c.Clusters.Update(res.Clusters)
	c.Endpoints.Update(res.Endpoints)
	c.Listeners.Update(res.Listeners)
	c.Routes.Update(res.Routes)
	c.Secrets.Update(res.Secrets)
}

// AsResources exposes the caches to the delivery engine.
func (c *Caches) AsResources() []xds.Resource {
	return []xds.Resource{c.Clusters, c.Endpoints, c.Listeners, c.Routes, c.Secrets}
}
