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

package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/flowplane/internal/errs"
	"github.com/flowplane/flowplane/internal/model"
)

const petstoreDoc = `
openapi: 3.0.0
info:
  title: Petstore
  version: "1.0"
x-flowplane-domain: pets.example.com
x-flowplane-filters:
  cors:
    allowOrigins: ["https://app.example.com"]
servers:
  - url: https://petstore.internal:8443
paths:
  /pets:
    get:
      responses:
        "200":
          description: ok
    post:
      x-flowplane-route-timeout-seconds: 30
      responses:
        "201":
          description: created
  /pets/{petId}:
    get:
      x-flowplane-filters:
        jwtAuthn:
          disabled: true
      responses:
        "200":
          description: ok
`

func TestImportOpenAPI(t *testing.T) {
	d, err := ImportOpenAPI([]byte(petstoreDoc), "default")
	require.NoError(t, err)

	assert.Equal(t, "pets.example.com", d.Domain)
	assert.Equal(t, "default", d.Team)
	require.Len(t, d.Routes, 3)

	// Paths come out sorted, methods in fixed order within a path.
	byKey := map[string]*model.APIRoute{}
	for i := range d.Routes {
		r := &d.Routes[i]
		byKey[r.Methods[0]+" "+r.Path] = r
	}

	listPets := byKey["GET /pets"]
	require.NotNil(t, listPets)
	assert.Equal(t, model.MatchPrefix, listPets.PathType)
	assert.Equal(t, []string{"GET"}, listPets.Methods)
	assert.Equal(t, "petstore.internal", listPets.Upstream.Host)
	assert.Equal(t, uint32(8443), listPets.Upstream.Port)
	assert.True(t, listPets.Upstream.UseTLS)
	// Document-level filters apply when the operation has none.
	require.NotNil(t, listPets.Overrides)
	require.NotNil(t, listPets.Overrides.CORS)

	createPet := byKey["POST /pets"]
	require.NotNil(t, createPet)
	assert.Equal(t, uint32(30), createPet.TimeoutSeconds)

	// Parameterized paths become template matches; the per-operation
	// extension replaces the document default.
	getPet := byKey["GET /pets/{petId}"]
	require.NotNil(t, getPet)
	assert.Equal(t, model.MatchTemplate, getPet.PathType)
	require.NotNil(t, getPet.Overrides)
	assert.Nil(t, getPet.Overrides.CORS)
	require.NotNil(t, getPet.Overrides.JWTAuthn)
	assert.True(t, getPet.Overrides.JWTAuthn.Disabled)
}

func TestImportOpenAPIDefaultsDomainToUpstream(t *testing.T) {
	doc := `
openapi: 3.0.0
info: {title: t, version: "1"}
servers: [{url: "http://svc.internal"}]
paths:
  /a:
    get:
      responses: {"200": {description: ok}}
`
	d, err := ImportOpenAPI([]byte(doc), "default")
	require.NoError(t, err)
	assert.Equal(t, "svc.internal", d.Domain)
	assert.Equal(t, uint32(80), d.Routes[0].Upstream.Port)
	assert.False(t, d.Routes[0].Upstream.UseTLS)
}

func TestImportOpenAPIRejects(t *testing.T) {
	run := map[string]string{
		"no server": `
openapi: 3.0.0
info: {title: t, version: "1"}
paths:
  /a:
    get:
      responses: {"200": {description: ok}}
`,
		"no paths": `
openapi: 3.0.0
info: {title: t, version: "1"}
servers: [{url: "http://svc.internal"}]
paths: {}
`,
		"not openapi": `{"foo": `,
	}
	for name, doc := range run {
		t.Run(name, func(t *testing.T) {
			_, err := ImportOpenAPI([]byte(doc), "default")
			require.Error(t, err)
			assert.True(t, errs.IsKind(err, errs.KindValidation), "got %v", err)
		})
	}
}

func TestImportedDefinitionMaterializes(t *testing.T) {
	m, st, _ := testMaterializer(t)
	ctx := context.Background()

	d, err := ImportOpenAPI([]byte(petstoreDoc), "default")
	require.NoError(t, err)
	created, err := m.Create(ctx, adminCtx, d)
	require.NoError(t, err)

	// Importing the same document twice collides on the domain.
	again, err := ImportOpenAPI([]byte(petstoreDoc), "default")
	require.NoError(t, err)
	_, err = m.Create(ctx, adminCtx, again)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindConflict), "got %v", err)

	rc, err := st.GetRouteConfigByID(ctx, created.RouteConfigID)
	require.NoError(t, err)
	vh := findVirtualHost(rc, "pets.example.com")
	require.NotNil(t, vh)
	assert.Len(t, vh.Routes, 3)
}
