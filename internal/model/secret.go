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
	"strings"
	"time"

	"github.com/flowplane/flowplane/internal/errs"
)

// SecretType names what a secret holds.
type SecretType string

const (
	// SecretTLSCertificate holds a PEM certificate chain and private key.
	SecretTLSCertificate SecretType = "tls_certificate"
	// SecretValidationContext holds a PEM CA bundle for peer validation.
	SecretValidationContext SecretType = "validation_context"
	// SecretGeneric holds an opaque payload.
	SecretGeneric SecretType = "generic"
)

func (t SecretType) Validate() error {
	switch t {
	case SecretTLSCertificate, SecretValidationContext, SecretGeneric:
		return nil
	default:
		return errs.Validation("unknown secret type %q", string(t))
	}
}

// InlineSecret is secret material stored in the repository. It is encrypted
// at rest by the store and held in cleartext only in memory.
type InlineSecret struct {
	CertChain  []byte `json:"certChain,omitempty"`
	PrivateKey []byte `json:"privateKey,omitempty"`
	CABundle   []byte `json:"caBundle,omitempty"`
	Payload    []byte `json:"payload,omitempty"`
}

// Reference schemes accepted for external secret sources. The control plane
// stores these verbatim and never resolves them itself.
var referenceSchemes = []string{"vault:", "aws:", "gcp:", "file:"}

// Secret is named sensitive material delivered over SDS or referenced by
// listeners and clusters.
type Secret struct {
	ID        SecretID      `json:"id"`
	Team      string        `json:"team"`
	Name      string        `json:"name"`
	Type      SecretType    `json:"type"`
	Inline    *InlineSecret `json:"inline,omitempty"`
	Reference string        `json:"reference,omitempty"`
	Version   int64         `json:"version"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Validate checks the secret document. Exactly one of inline material and
// an external reference must be present.
func (s *Secret) Validate() error {
	if err := ValidateName("secret", s.Name); err != nil {
		return err
	}
	if err := ValidateName("team", s.Team); err != nil {
		return err
	}
	if err := s.Type.Validate(); err != nil {
		return err
	}
	if (s.Inline == nil) == (s.Reference == "") {
		return errs.Validation("secret %q requires exactly one of inline material or a reference", s.Name)
	}
	if s.Reference != "" {
		ok := false
		for _, scheme := range referenceSchemes {
			if strings.HasPrefix(s.Reference, scheme) {
				ok = true
				break
			}
		}
		if !ok {
			return errs.Validation("secret reference %q has an unsupported scheme", s.Reference)
		}
		return nil
	}

	switch s.Type {
	case SecretTLSCertificate:
		if len(s.Inline.CertChain) == 0 || len(s.Inline.PrivateKey) == 0 {
			return errs.Validation("tls certificate secret requires certChain and privateKey")
		}
	case SecretValidationContext:
		if len(s.Inline.CABundle) == 0 {
			return errs.Validation("validation context secret requires caBundle")
		}
	case SecretGeneric:
		if len(s.Inline.Payload) == 0 {
			return errs.Validation("generic secret requires a payload")
		}
	}
	return nil
}

// Redacted returns a copy safe for API responses and audit trails: inline
// material is replaced with its byte lengths.
func (s *Secret) Redacted() *Secret {
	out := *s
	if s.Inline != nil {
		out.Inline = &InlineSecret{}
	}
	return &out
}
