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

// Package platform turns declarative API definitions into native
// configuration resources: clusters, listeners, virtual hosts and routes.
// Materialization is a single transaction; either the whole definition
// lands or none of it does.
package platform

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/flowplane/flowplane/internal/auth"
	"github.com/flowplane/flowplane/internal/errs"
	"github.com/flowplane/flowplane/internal/hub"
	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/store"
)

// DefaultIsolationBindAddress is where isolated listeners bind when the
// definition does not pick an address.
const DefaultIsolationBindAddress = "0.0.0.0"

// Materializer projects API definitions onto native resources.
type Materializer struct {
	store *store.Store
	hub   *hub.Hub

	logrus.FieldLogger
}

// NewMaterializer wires the materializer.
func NewMaterializer(log logrus.FieldLogger, st *store.Store, h *hub.Hub) *Materializer {
	return &Materializer{
		store:       st,
		hub:         h,
		FieldLogger: log.WithField("context", "materializer"),
	}
}

// sanitizeLabel turns a domain or host into a DNS-label-safe name segment.
func sanitizeLabel(s string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, s)
	out = strings.Trim(out, "-")
	if len(out) > 48 {
		out = out[:48]
	}
	if out == "" {
		out = "api"
	}
	return out
}

// Derived names of materialized resources. Deterministic so re-imports and
// appends find their targets.
func routeConfigNameFor(domain string) string { return sanitizeLabel(domain) + "-routes" }
func listenerNameFor(domain string) string    { return sanitizeLabel(domain) + "-listener" }
func virtualHostNameFor(domain string) string { return sanitizeLabel(domain) }

func clusterNameFor(u model.UpstreamTarget) string {
	if u.ClusterName != "" {
		return u.ClusterName
	}
	return fmt.Sprintf("%s-%d", sanitizeLabel(u.Host), u.Port)
}

// BootstrapURIFor is the stable endpoint pattern returned with every
// materialized definition.
func BootstrapURIFor(id model.APIDefinitionID) string {
	return fmt.Sprintf("/api/v1/api-definitions/%s/bootstrap", id)
}

// toRoute expands one declarative route into a native route row.
func toRoute(r *model.APIRoute, order int64) *model.Route {
	if r.RuleOrder != 0 {
		order = r.RuleOrder
	}
	return &model.Route{
		Match: model.RouteMatch{
			PathType: r.PathType,
			Path:     r.Path,
			Headers:  r.Headers,
			Methods:  r.Methods,
		},
		ClusterName:    clusterNameFor(r.Upstream),
		RuleOrder:      order,
		TimeoutSeconds: r.TimeoutSeconds,
		PrefixRewrite:  r.PrefixRewrite,
		Overrides:      r.Overrides,
	}
}

// ensureCluster resolves the route's upstream to a cluster, creating a
// dedicated one from host/port when the definition does not name an
// existing cluster.
func (m *Materializer) ensureCluster(ctx context.Context, tx *store.Tx, actor *auth.Context, team string, u model.UpstreamTarget) error {
	name := clusterNameFor(u)
	if u.ClusterName != "" {
		if _, err := tx.ResolveCluster(ctx, team, name); err != nil {
			if errs.IsKind(err, errs.KindNotFound) {
				return errs.Validation("route names unknown cluster %q", name)
			}
			return err
		}
		return nil
	}

	_, err := tx.GetClusterByName(ctx, team, name)
	if err == nil {
		return nil
	}
	if !errs.IsKind(err, errs.KindNotFound) {
		return err
	}

	c := &model.Cluster{
		Team: team,
		Name: name,
		Spec: model.ClusterSpec{
			Endpoints: []model.Endpoint{{Host: u.Host, Port: u.Port}},
		},
	}
	if u.UseTLS {
		c.Spec.TLS = &model.UpstreamTLS{ServerName: u.Host}
	}
	if err := tx.CreateCluster(ctx, c); err != nil {
		return err
	}
	return tx.AppendAudit(ctx, m.audit(actor, "cluster.created", "cluster", string(c.ID), nil, c))
}

func (m *Materializer) audit(actor *auth.Context, action, resourceType, resourceID string, old, updated any) *model.AuditEvent {
	e := &model.AuditEvent{
		Actor:        "system",
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	if actor != nil {
		e.Actor = actor.TokenName
		e.ClientIP = actor.ClientIP
		e.UserAgent = actor.UserAgent
	}
	if old != nil {
		e.Old = model.MustEncode(old)
	}
	if updated != nil {
		e.New = model.MustEncode(updated)
	}
	return e
}

// Create materializes a definition: domain collision check, upstream
// clusters, a virtual host on the default gateway or a dedicated isolated
// listener, and the routes in declared order.
func (m *Materializer) Create(ctx context.Context, actor *auth.Context, d *model.APIDefinition) (*model.APIDefinition, error) {
	if err := auth.Authorize(actor, "api-definitions:write", d.Team); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.RequireWritableTeam(ctx, d.Team); err != nil {
			return err
		}
		if err := tx.EnsureDomainAvailable(ctx, d.Team, d.Domain, d.ListenerIsolation); err != nil {
			return err
		}

		for i := range d.Routes {
			if err := m.ensureCluster(ctx, tx, actor, d.Team, d.Routes[i].Upstream); err != nil {
				return err
			}
		}

		vh := model.VirtualHost{
			Name:    virtualHostNameFor(d.Domain),
			Domains: []string{d.Domain},
		}
		for i := range d.Routes {
			vh.Routes = append(vh.Routes, *toRoute(&d.Routes[i], int64(i)))
		}

		if d.ListenerIsolation {
			if err := m.materializeIsolated(ctx, tx, actor, d, vh); err != nil {
				return err
			}
		} else {
			if err := m.materializeShared(ctx, tx, actor, d, vh); err != nil {
				return err
			}
		}

		d.ID = model.APIDefinitionID(model.NewUID())
		d.BootstrapURI = BootstrapURIFor(d.ID)
		if err := tx.CreateAPIDefinition(ctx, d); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, m.audit(actor, "api_definition.created", "api_definition", string(d.ID), nil, d))
	})
	if err != nil {
		return nil, err
	}

	m.publish(ctx)
	m.WithField("domain", d.Domain).WithField("team", d.Team).Info("materialized api definition")
	return d, nil
}

// materializeShared attaches the definition's virtual host to the default
// gateway routing table.
func (m *Materializer) materializeShared(ctx context.Context, tx *store.Tx, actor *auth.Context, d *model.APIDefinition, vh model.VirtualHost) error {
	rc, err := tx.GetRouteConfigByName(ctx, model.DefaultTeam, model.DefaultRouteConfigName)
	if err != nil {
		return err
	}
	if err := tx.AddVirtualHost(ctx, rc, &vh); err != nil {
		return err
	}
	if err := tx.AppendAudit(ctx, m.audit(actor, "route_config.updated", "route_config", string(rc.ID), nil, &vh)); err != nil {
		return err
	}
	d.RouteConfigID = rc.ID
	return nil
}

// materializeIsolated creates a dedicated routing table and listener for
// the definition.
func (m *Materializer) materializeIsolated(ctx context.Context, tx *store.Tx, actor *auth.Context, d *model.APIDefinition, vh model.VirtualHost) error {
	rc := &model.RouteConfig{
		Team:         d.Team,
		Name:         routeConfigNameFor(d.Domain),
		VirtualHosts: []model.VirtualHost{vh},
	}
	if err := tx.CreateRouteConfig(ctx, rc); err != nil {
		return err
	}
	if err := tx.AppendAudit(ctx, m.audit(actor, "route_config.created", "route_config", string(rc.ID), nil, rc)); err != nil {
		return err
	}

	bind := d.Isolation.BindAddress
	if bind == "" {
		bind = DefaultIsolationBindAddress
	}
	l := &model.Listener{
		Team:        d.Team,
		Name:        listenerNameFor(d.Domain),
		BindAddress: bind,
		Port:        d.Isolation.Port,
		Protocol:    model.ProtocolHTTP,
		Spec:        model.ListenerSpec{RouteConfigName: rc.Name},
	}
	if d.TLS != nil {
		l.Protocol = model.ProtocolHTTPS
		l.Spec.TLS = d.TLS
	}
	if err := l.Validate(); err != nil {
		return err
	}
	if err := tx.CreateListener(ctx, l); err != nil {
		return err
	}
	if err := tx.AppendAudit(ctx, m.audit(actor, "listener.created", "listener", string(l.ID), nil, l)); err != nil {
		return err
	}

	d.RouteConfigID = rc.ID
	d.ListenerID = l.ID
	return nil
}

// Get loads one definition.
func (m *Materializer) Get(ctx context.Context, actor *auth.Context, id model.APIDefinitionID) (*model.APIDefinition, error) {
	d, err := m.store.GetAPIDefinitionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(actor, "api-definitions:read", d.Team); err != nil {
		return nil, err
	}
	return d, nil
}

// List pages through definitions, optionally narrowed to one team.
func (m *Materializer) List(ctx context.Context, actor *auth.Context, team string, page model.ListPage) ([]*model.APIDefinition, error) {
	if err := auth.Authorize(actor, "api-definitions:read", team); err != nil {
		return nil, err
	}
	return m.store.ListAPIDefinitions(ctx, team, page)
}

// AppendRoute materializes exactly one additional route on an existing
// definition and bumps its revision.
func (m *Materializer) AppendRoute(ctx context.Context, actor *auth.Context, id model.APIDefinitionID, r *model.APIRoute) (model.RouteID, int64, error) {
	d, err := m.store.GetAPIDefinitionByID(ctx, id)
	if err != nil {
		return "", 0, err
	}
	if err := auth.Authorize(actor, "api-definitions:write", d.Team); err != nil {
		return "", 0, err
	}
	if err := r.Validate(); err != nil {
		return "", 0, err
	}

	var routeID model.RouteID
	err = m.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.RequireWritableTeam(ctx, d.Team); err != nil {
			return err
		}
		rc, err := tx.GetRouteConfigByID(ctx, d.RouteConfigID)
		if err != nil {
			return err
		}
		vh := findVirtualHost(rc, d.Domain)
		if vh == nil {
			return errs.Internal(nil, "api definition %s has no virtual host for domain %q", d.ID, d.Domain)
		}
		if err := tx.EnsureRouteAvailable(ctx, vh.ID, r.PathType, r.Path, r.Methods); err != nil {
			return err
		}
		if err := m.ensureCluster(ctx, tx, actor, d.Team, r.Upstream); err != nil {
			return err
		}

		rt := toRoute(r, nextRuleOrder(vh))
		if err := tx.AppendRoute(ctx, d.Team, vh, rt); err != nil {
			return err
		}
		routeID = rt.ID
		r.ID = rt.ID

		d.Routes = append(d.Routes, *r)
		if err := tx.UpdateAPIDefinition(ctx, d); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, m.audit(actor, "api_definition.route_appended", "api_definition", string(d.ID), nil, r))
	})
	if err != nil {
		return "", 0, err
	}

	m.publish(ctx)
	return routeID, d.Version, nil
}

// Delete removes a definition and tears down the resources it produced.
// Shared definitions drop their virtual host from the default gateway;
// isolated ones drop their listener and routing table. Upstream clusters
// are left in place, other definitions may share them.
func (m *Materializer) Delete(ctx context.Context, actor *auth.Context, id model.APIDefinitionID) error {
	d, err := m.store.GetAPIDefinitionByID(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.Authorize(actor, "api-definitions:write", d.Team); err != nil {
		return err
	}

	err = m.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.DeleteAPIDefinition(ctx, id); err != nil {
			return err
		}

		if d.ListenerIsolation {
			rc, err := tx.GetRouteConfigByID(ctx, d.RouteConfigID)
			if err != nil {
				return err
			}
			l, err := tx.GetListenerByID(ctx, d.ListenerID)
			if err != nil {
				return err
			}
			if _, err := tx.DeleteListener(ctx, l.Team, l.Name); err != nil {
				return err
			}
			if _, err := tx.DeleteRouteConfig(ctx, rc.Team, rc.Name); err != nil {
				return err
			}
		} else {
			rc, err := tx.GetRouteConfigByID(ctx, d.RouteConfigID)
			if err != nil {
				return err
			}
			if vh := findVirtualHost(rc, d.Domain); vh != nil {
				if err := tx.RemoveVirtualHost(ctx, vh); err != nil {
					return err
				}
			}
		}
		return tx.AppendAudit(ctx, m.audit(actor, "api_definition.deleted", "api_definition", string(d.ID), d, nil))
	})
	if err != nil {
		return err
	}

	m.publish(ctx)
	return nil
}

func (m *Materializer) publish(ctx context.Context) {
	if _, err := m.hub.Publish(ctx); err != nil {
		m.WithError(err).Error("publishing configuration change")
	}
}

func findVirtualHost(rc *model.RouteConfig, domain string) *model.VirtualHost {
	for i := range rc.VirtualHosts {
		for _, d := range rc.VirtualHosts[i].Domains {
			if d == domain {
				return &rc.VirtualHosts[i]
			}
		}
	}
	return nil
}

func nextRuleOrder(vh *model.VirtualHost) int64 {
	var max int64 = -1
	for _, rt := range vh.Routes {
		if rt.RuleOrder > max {
			max = rt.RuleOrder
		}
	}
	return max + 1
}
