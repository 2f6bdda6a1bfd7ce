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

// Package debug provides http endpoints for pprof profiling and a YAML
// dump of the compiled xDS caches.
package debug

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"

	"google.golang.org/protobuf/encoding/protojson"
	"sigs.k8s.io/yaml"

	"github.com/flowplane/flowplane/internal/httpsvc"
	xdscache_v3 "github.com/flowplane/flowplane/internal/xdscache/v3"
)

// Service serves /debug/pprof and /debug/xds.
type Service struct {
	httpsvc.Service

	Caches *xdscache_v3.Caches
}

// Start fulfills the workgroup contract. When stop is closed the http
// server shuts down.
func (svc *Service) Start(stop <-chan struct{}) error {
	svc.Service.Handler = svc.Handler()
	return svc.Service.Start(stop)
}

// Handler assembles the debug mux.
func (svc *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	registerProfile(mux)
	mux.HandleFunc("/debug/xds", svc.writeXDS)
	return mux
}

func registerProfile(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/pprof/block", pprof.Handler("block"))
	mux.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	mux.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
}

type dumpEntry struct {
	Name     string          `json:"name"`
	Version  string          `json:"version"`
	Resource json.RawMessage `json:"resource"`
}

// writeXDS dumps the current contents of every compiled cache as YAML,
// grouped by type URL. This is what a connecting wildcard stream would
// receive.
func (svc *Service) writeXDS(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("type")

	out := map[string][]dumpEntry{}
	for _, cache := range svc.Caches.AsResources() {
		if filter != "" && cache.TypeURL() != filter {
			continue
		}
		entries := []dumpEntry{}
		for _, res := range cache.Contents() {
			data, err := protojson.Marshal(res.Message)
			if err != nil {
				svc.WithError(err).WithField("resource", res.Name).Error("marshaling cached resource")
				http.Error(w, "marshaling cached resource", http.StatusInternalServerError)
				return
			}
			entries = append(entries, dumpEntry{
				Name:     res.Name,
				Version:  res.Version,
				Resource: data,
			})
		}
		out[cache.TypeURL()] = entries
	}

	data, err := json.Marshal(out)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	doc, err := yaml.JSONToYAML(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(doc)
}
