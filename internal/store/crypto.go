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

package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/flowplane/flowplane/internal/errs"
)

// secretCipher seals inline secret material with AES-256-GCM before it is
// written to the secrets table. The key is stretched from the configured
// string; the nonce is prepended to the ciphertext.
type secretCipher struct {
	aead cipher.AEAD
}

func newSecretCipher(key string) *secretCipher {
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		// sha256 output is always a valid AES-256 key.
		panic(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		panic(err)
	}
	return &secretCipher{aead: aead}
}

func (c *secretCipher) seal(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errs.Internal(err, "generating nonce")
	}
	out := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *secretCipher) open(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errs.Internal(err, "decoding sealed secret")
	}
	if len(raw) < c.aead.NonceSize() {
		return nil, errs.Internal(nil, "sealed secret too short")
	}
	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errs.Internal(err, "opening sealed secret")
	}
	return plaintext, nil
}
