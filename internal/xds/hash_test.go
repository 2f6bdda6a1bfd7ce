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

package xds

import (
	"sync"
	"testing"

	envoy_config_cluster_v3 "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	"github.com/stretchr/testify/assert"
)

func TestHashProto(t *testing.T) {
	a := &envoy_config_cluster_v3.Cluster{Name: "payments/app"}
	b := &envoy_config_cluster_v3.Cluster{Name: "payments/app"}
	c := &envoy_config_cluster_v3.Cluster{Name: "payments/checkout"}

	// Equal content hashes equally across distinct messages.
	assert.Equal(t, HashProto(a), HashProto(b))
	assert.NotEqual(t, HashProto(a), HashProto(c))
	assert.Len(t, HashProto(a), 16)
}

func TestHashSet(t *testing.T) {
	set := []VersionedResource{
		{Name: "a", Version: "1111111111111111"},
		{Name: "b", Version: "2222222222222222"},
	}

	same := HashSet([]VersionedResource{
		{Name: "a", Version: "1111111111111111"},
		{Name: "b", Version: "2222222222222222"},
	})
	assert.Equal(t, HashSet(set), same)

	// A changed version, a changed name and a dropped member all move the
	// set hash.
	assert.NotEqual(t, HashSet(set), HashSet([]VersionedResource{
		{Name: "a", Version: "1111111111111111"},
		{Name: "b", Version: "3333333333333333"},
	}))
	assert.NotEqual(t, HashSet(set), HashSet([]VersionedResource{
		{Name: "a", Version: "1111111111111111"},
		{Name: "c", Version: "2222222222222222"},
	}))
	assert.NotEqual(t, HashSet(set), HashSet(set[:1]))

	assert.Equal(t, HashSet(nil), HashSet([]VersionedResource{}))
}

func TestCounter(t *testing.T) {
	var c Counter

	var wg sync.WaitGroup
	seen := make(chan uint64, 100)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				seen <- c.Next()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[uint64]bool{}
	for v := range seen {
		assert.False(t, unique[v])
		unique[v] = true
	}
	assert.Len(t, unique, 100)
}
