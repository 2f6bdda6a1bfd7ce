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

import (
	"bytes"
	"encoding/json"

	"github.com/flowplane/flowplane/internal/errs"
)

// DecodeStrict unmarshals JSON rejecting unknown fields, so typos in
// configuration documents surface as validation errors instead of being
// silently dropped.
func DecodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errs.Validation("invalid configuration document: %v", err)
	}
	// Trailing garbage after the document is also a validation error.
	if dec.More() {
		return errs.Validation("invalid configuration document: trailing data")
	}
	return nil
}

// MustEncode marshals v to JSON, panicking on failure. It is reserved for
// values whose types marshal by construction.
func MustEncode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
