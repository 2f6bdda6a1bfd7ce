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
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/flowplane/flowplane/internal/errs"
	"github.com/flowplane/flowplane/internal/model"
)

// Vendor extensions honored during OpenAPI import.
const (
	extDomain       = "x-flowplane-domain"
	extFilters      = "x-flowplane-filters"
	extRouteTimeout = "x-flowplane-route-timeout-seconds"
)

// methodOrder fixes the emission order of operations within one path.
var methodOrder = []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "TRACE"}

// ImportOpenAPI adapts an OpenAPI 3 document into an API definition: one
// route per (path, method), template matches for parameterized paths, and
// the upstream derived from the document's first server.
func ImportOpenAPI(data []byte, team string) (*model.APIDefinition, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, errs.Validation("parsing OpenAPI document: %v", err)
	}
	if doc.Paths == nil || doc.Paths.Len() == 0 {
		return nil, errs.Validation("OpenAPI document declares no paths")
	}

	upstream, err := upstreamFromServers(doc.Servers)
	if err != nil {
		return nil, err
	}
	domain, err := domainFor(doc, upstream)
	if err != nil {
		return nil, err
	}
	docOverrides, err := overridesFromExtension(doc.Extensions)
	if err != nil {
		return nil, err
	}

	d := &model.APIDefinition{
		Team:   team,
		Domain: domain,
	}

	paths := doc.Paths.Map()
	sortedPaths := make([]string, 0, len(paths))
	for p := range paths {
		sortedPaths = append(sortedPaths, p)
	}
	sort.Strings(sortedPaths)

	for _, p := range sortedPaths {
		item := paths[p]
		ops := item.Operations()
		for _, method := range methodOrder {
			op, ok := ops[method]
			if !ok {
				continue
			}
			route, err := routeFromOperation(p, method, op, upstream, docOverrides)
			if err != nil {
				return nil, err
			}
			d.Routes = append(d.Routes, *route)
		}
	}
	if len(d.Routes) == 0 {
		return nil, errs.Validation("OpenAPI document declares no operations")
	}
	return d, nil
}

// routeFromOperation maps one (path, method) onto a declarative route.
// Parameterized paths become template matches; every route constrains the
// :method pseudo-header.
func routeFromOperation(path, method string, op *openapi3.Operation, upstream model.UpstreamTarget, docOverrides *model.FilterOverrides) (*model.APIRoute, error) {
	r := &model.APIRoute{
		Path:      path,
		PathType:  model.MatchPrefix,
		Methods:   []string{method},
		Upstream:  upstream,
		Overrides: docOverrides,
	}
	if strings.Contains(path, "{") {
		r.PathType = model.MatchTemplate
	}

	if raw, ok := op.Extensions[extFilters]; ok {
		overrides, err := decodeOverrides(raw)
		if err != nil {
			return nil, errs.Validation("operation %s %s: %v", method, path, err)
		}
		r.Overrides = overrides
	}
	if raw, ok := op.Extensions[extRouteTimeout]; ok {
		timeout, err := decodeUint32(raw)
		if err != nil {
			return nil, errs.Validation("operation %s %s: %s must be a positive integer", method, path, extRouteTimeout)
		}
		r.TimeoutSeconds = timeout
	}
	return r, nil
}

// upstreamFromServers derives the upstream target from the document's
// first server URL.
func upstreamFromServers(servers openapi3.Servers) (model.UpstreamTarget, error) {
	if len(servers) == 0 || servers[0].URL == "" {
		return model.UpstreamTarget{}, errs.Validation("OpenAPI document requires a server URL for the upstream")
	}
	u, err := url.Parse(servers[0].URL)
	if err != nil || u.Hostname() == "" {
		return model.UpstreamTarget{}, errs.Validation("OpenAPI server URL %q is not usable as an upstream", servers[0].URL)
	}

	target := model.UpstreamTarget{
		Host:   u.Hostname(),
		UseTLS: u.Scheme == "https",
	}
	switch {
	case u.Port() != "":
		port, err := strconv.ParseUint(u.Port(), 10, 16)
		if err != nil {
			return model.UpstreamTarget{}, errs.Validation("OpenAPI server URL %q has an invalid port", servers[0].URL)
		}
		target.Port = uint32(port)
	case target.UseTLS:
		target.Port = 443
	default:
		target.Port = 80
	}
	return target, nil
}

// domainFor resolves the definition's domain: the x-flowplane-domain
// extension wins, the upstream host is the fallback.
func domainFor(doc *openapi3.T, upstream model.UpstreamTarget) (string, error) {
	if raw, ok := doc.Extensions[extDomain]; ok {
		var domain string
		if err := reencode(raw, &domain); err != nil || domain == "" {
			return "", errs.Validation("%s must be a non-empty string", extDomain)
		}
		return domain, nil
	}
	return upstream.Host, nil
}

func overridesFromExtension(ext map[string]any) (*model.FilterOverrides, error) {
	raw, ok := ext[extFilters]
	if !ok {
		return nil, nil
	}
	overrides, err := decodeOverrides(raw)
	if err != nil {
		return nil, errs.Validation("%s: %v", extFilters, err)
	}
	return overrides, nil
}

func decodeOverrides(raw any) (*model.FilterOverrides, error) {
	overrides := &model.FilterOverrides{}
	if err := reencode(raw, overrides); err != nil {
		return nil, err
	}
	if err := overrides.Validate(); err != nil {
		return nil, err
	}
	return overrides, nil
}

func decodeUint32(raw any) (uint32, error) {
	var v float64
	if err := reencode(raw, &v); err != nil || v <= 0 || v != float64(uint32(v)) {
		return 0, errs.Validation("not a positive integer")
	}
	return uint32(v), nil
}

// reencode round-trips an extension value through JSON into the target
// type. kin-openapi surfaces extensions as untyped interfaces.
func reencode(raw, into any) error {
	buf, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, into)
}
