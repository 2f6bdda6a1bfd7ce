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

package timeout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := map[string]struct {
		in      string
		want    Setting
		wantErr bool
	}{
		"empty is default":   {in: "", want: DefaultSetting()},
		"zero is default":    {in: "0s", want: DefaultSetting()},
		"explicit duration":  {in: "90s", want: DurationSetting(90 * time.Second)},
		"compound duration":  {in: "1m30s", want: DurationSetting(90 * time.Second)},
		"infinity disables":  {in: "infinity", want: DisabledSetting()},
		"infinite disables":  {in: "infinite", want: DisabledSetting()},
		"garbage errors":     {in: "soon", wantErr: true},
		"bare number errors": {in: "90", wantErr: true},
		"negative passes":    {in: "-1s", want: DurationSetting(-time.Second)},
		"unit required":      {in: "1.5", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := Parse(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSettingOr(t *testing.T) {
	assert.Equal(t, 15*time.Second, DefaultSetting().Or(15*time.Second))
	assert.Equal(t, time.Duration(0), DisabledSetting().Or(15*time.Second))
	assert.Equal(t, time.Minute, DurationSetting(time.Minute).Or(15*time.Second))
}

func TestSettingPredicates(t *testing.T) {
	assert.True(t, DefaultSetting().UseDefault())
	assert.True(t, DisabledSetting().IsDisabled())
	assert.False(t, DurationSetting(time.Second).UseDefault())
	assert.Equal(t, time.Second, DurationSetting(time.Second).Duration())

	// A zero duration collapses to the default.
	assert.True(t, DurationSetting(0).UseDefault())
}
