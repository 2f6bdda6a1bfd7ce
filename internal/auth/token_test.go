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

package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/flowplane/internal/model"
)

func TestSplitToken(t *testing.T) {
	id := model.TokenID("0b118e7a-17a3-4e76-a4a5-6dbb2b8a2b6a")

	run := map[string]struct {
		bearer  string
		wantErr bool
	}{
		"plain":          {bearer: FormatToken(id, "s3cret")},
		"bearer prefix":  {bearer: "Bearer " + FormatToken(id, "s3cret")},
		"padded":         {bearer: "  " + FormatToken(id, "s3cret") + " "},
		"wrong prefix":   {bearer: "pat_" + string(id) + ".s3cret", wantErr: true},
		"no separator":   {bearer: TokenPrefix + string(id) + "s3cret", wantErr: true},
		"empty secret":   {bearer: TokenPrefix + string(id) + ".", wantErr: true},
		"non-uuid id":    {bearer: TokenPrefix + "not-a-uuid.s3cret", wantErr: true},
		"empty":          {bearer: "", wantErr: true},
		"secret only":    {bearer: TokenPrefix + ".s3cret", wantErr: true},
		"double bearer":  {bearer: "Bearer Bearer " + FormatToken(id, "s3cret"), wantErr: true},
		"secret has dot": {bearer: FormatToken(id, "se.cret")},
	}

	for name, tc := range run {
		t.Run(name, func(t *testing.T) {
			gotID, secret, err := SplitToken(tc.bearer)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, gotID)
			assert.NotEmpty(t, secret)
		})
	}
}

func TestHashVerifyRoundTrip(t *testing.T) {
	secret, err := NewSecret()
	require.NoError(t, err)

	hash, err := HashSecret(secret)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=768,t=1,p=1$"), "got %s", hash)

	assert.True(t, VerifySecret(hash, secret))
	assert.False(t, VerifySecret(hash, secret+"x"))
	assert.False(t, VerifySecret(hash, ""))

	// Same secret, fresh salt, different encoding.
	hash2, err := HashSecret(secret)
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
	assert.True(t, VerifySecret(hash2, secret))
}

func TestVerifySecretMalformedHash(t *testing.T) {
	for name, hash := range map[string]string{
		"empty":         "",
		"not phc":       "argon2id",
		"bad algorithm": "$bcrypt$v=19$m=768,t=1,p=1$c2FsdA$aGFzaA",
		"bad version":   "$argon2id$v=18$m=768,t=1,p=1$c2FsdA$aGFzaA",
		"bad base64":    "$argon2id$v=19$m=768,t=1,p=1$!!$!!",
		"missing parts": "$argon2id$v=19$m=768,t=1,p=1$c2FsdA",
	} {
		t.Run(name, func(t *testing.T) {
			assert.False(t, VerifySecret(hash, "anything"))
		})
	}
}
