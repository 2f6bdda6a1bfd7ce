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
	"fmt"
	"hash/fnv"

	"google.golang.org/protobuf/proto"
)

// HashProto content-addresses a compiled resource: a stable fnv64a hash of
// its deterministic serialization.
func HashProto(msg proto.Message) string {
	buf, err := proto.MarshalOptions{Deterministic: true}.Marshal(msg)
	if err != nil {
		// Compiled resources always marshal; a failure here is a bug in
		// the compiler.
		panic(fmt.Sprintf("marshaling %T: %v", msg, err))
	}
	h := fnv.New64a()
	_, _ = h.Write(buf)
	return fmt.Sprintf("%016x", h.Sum64())
}

// HashSet folds the versions of a resource set into one fingerprint. Two
// sets hash equally exactly when they carry the same resources at the same
// content versions.
func HashSet(resources []VersionedResource) string {
	h := fnv.New64a()
	for _, r := range resources {
		_, _ = h.Write([]byte(r.Name))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(r.Version))
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
