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

// Package auth owns personal access tokens: their wire format, the Argon2id
// secret hashing, the scope grammar, the authentication pipeline and the
// expiry sweeper.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/flowplane/flowplane/internal/errs"
	"github.com/flowplane/flowplane/internal/model"
)

// TokenPrefix starts every bearer credential issued by this control plane.
const TokenPrefix = "fp_pat_"

// Argon2id parameters. These are deliberately constants, not configuration:
// exposing them would invite silent weakening. Memory is sized so that a
// verification stays under ~10ms.
const (
	argonMemoryKiB = 768
	argonTime      = 1
	argonThreads   = 1
	argonKeyLen    = 32
	argonSaltLen   = 16
)

// FormatToken assembles the bearer string handed to the caller exactly
// once, at creation or rotation time.
func FormatToken(id model.TokenID, secret string) string {
	return fmt.Sprintf("%s%s.%s", TokenPrefix, id, secret)
}

// SplitToken parses a bearer string into token id and secret. An optional
// "Bearer " prefix is tolerated. All parse failures report the same
// unauthenticated error so the format gives nothing away.
func SplitToken(bearer string) (model.TokenID, string, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(bearer), "Bearer "))
	if !strings.HasPrefix(raw, TokenPrefix) {
		return "", "", errs.Unauthenticated("malformed access token")
	}
	id, secret, ok := strings.Cut(strings.TrimPrefix(raw, TokenPrefix), ".")
	if !ok || id == "" || secret == "" || !model.ValidUID(id) {
		return "", "", errs.Unauthenticated("malformed access token")
	}
	return model.TokenID(id), secret, nil
}

// NewSecret draws a fresh 256-bit token secret, base64url encoded.
func NewSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", errs.Internal(err, "reading entropy for token secret")
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashSecret derives the Argon2id digest of the secret and encodes it in
// PHC string form, the only representation the repository ever sees.
func HashSecret(secret string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", errs.Internal(err, "reading entropy for token salt")
	}
	digest := argon2.IDKey([]byte(secret), salt, argonTime, argonMemoryKiB, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemoryKiB, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest)), nil
}

// VerifySecret reports whether the secret matches the PHC-encoded hash.
// Comparison is constant time; malformed hashes simply fail to verify.
func VerifySecret(encoded, secret string) bool {
	parts := strings.Split(encoded, "$")
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, digest
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}
	var memory uint32
	var time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(secret), salt, time, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
