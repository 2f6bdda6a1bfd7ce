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

package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := map[string]struct {
		err  error
		want Kind
	}{
		"nil cause defaults to internal": {
			err:  errors.New("boom"),
			want: KindInternal,
		},
		"direct kind": {
			err:  NotFound("cluster", "api-backend"),
			want: KindNotFound,
		},
		"wrapped kind survives": {
			err:  fmt.Errorf("loading snapshot: %w", Conflict("version changed")),
			want: KindConflict,
		},
		"doubly wrapped kind survives": {
			err:  fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", Validation("bad port"))),
			want: KindValidation,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		KindValidation:            "validation",
		KindNotFound:              "not_found",
		KindConflict:              "conflict",
		KindInUse:                 "in_use",
		KindForbidden:             "forbidden",
		KindUnauthenticated:       "unauthenticated",
		KindTimeout:               "timeout",
		KindDependencyUnavailable: "dependency_unavailable",
		KindInternal:              "internal",
	}
	for kind, want := range tests {
		assert.Equal(t, want, kind.String())
	}
}

func TestInUseDetails(t *testing.T) {
	err := InUse("cluster is referenced by routes", []string{"route/checkout", "route/cart"})

	require.True(t, IsKind(err, KindInUse))
	details := DetailsOf(err)
	require.NotNil(t, details)
	assert.Equal(t, []string{"route/checkout", "route/cart"}, details["referents"])
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := DependencyUnavailable("database unreachable").WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindDependencyUnavailable, KindOf(err))
}

func TestWithDetail(t *testing.T) {
	err := Conflict("listener port already bound").
		WithDetail("bindAddress", "0.0.0.0").
		WithDetail("port", 10000)

	details := DetailsOf(err)
	assert.Equal(t, "0.0.0.0", details["bindAddress"])
	assert.Equal(t, 10000, details["port"])
}
