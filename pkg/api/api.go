// SPDX-License-Identifier: Apache-2.0

// Package api is the admin/metrics HTTP surface (SPEC_FULL §11): a
// chi-based router exposing /healthz, /metrics (prometheus) and a read-only
// /v1/sessions listing. This is ambient harness, not a spec.md module — the
// real signaling exchange (offer/answer) is an external collaborator per
// spec §1, reached only through pkg/rtcsrv.OfferAnswer. Grounded on the
// teacher's pkg/api: the same API interface (RegisterRoutes/Run/Shutdown),
// Route slice, TLS-capable Config, and OkHandler.
package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dt-netlab/pathcast/internal/logger"
)

// Route is one HTTP route registered with RegisterRoutes.
type Route struct {
	Path    string
	Method  string
	Handler http.HandlerFunc
}

// API is the admin HTTP surface's lifecycle, mirroring the teacher's
// checks-runner API interface.
//
//go:generate go tool moq -out api_moq.go . API
type API interface {
	RegisterRoutes(ctx context.Context, routes ...Route) error
	Run(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// TLSConfig optionally serves the admin API over TLS.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	CertPath string `yaml:"certPath" mapstructure:"certPath"`
	KeyPath  string `yaml:"keyPath" mapstructure:"keyPath"`
}

// Config is the admin API's configuration.
type Config struct {
	ListeningAddress string    `yaml:"listeningAddress" mapstructure:"listeningAddress"`
	Tls              TLSConfig `yaml:"tls" mapstructure:"tls"`
}

var (
	ErrMissingListeningAddress = errors.New("listening address must be set")
	ErrMissingCertPath         = errors.New("tls enabled but cert path is empty")
	ErrMissingKeyPath          = errors.New("tls enabled but key path is empty")
)

// Validate validates the admin API configuration.
func (c Config) Validate() error {
	if c.ListeningAddress == "" {
		return ErrMissingListeningAddress
	}
	if c.Tls.Enabled {
		if c.Tls.CertPath == "" {
			return ErrMissingCertPath
		}
		if c.Tls.KeyPath == "" {
			return ErrMissingKeyPath
		}
	}
	return nil
}

// SessionLister is the subset of pkg/session.Manager the /v1/sessions
// listing needs; defined here so this package never imports pkg/session
// (which would create an import cycle through pkg/persist-shaped wiring).
type SessionLister interface {
	Sessions() []SessionView
}

// SessionView is the read-only shape of one session rendered by
// /v1/sessions. pkg/app adapts pkg/session.Session into this.
type SessionView struct {
	ConnID             string    `json:"conn_id"`
	SurveySessionID    string    `json:"survey_session_id,omitempty"`
	PeerAddress        string    `json:"peer_address,omitempty"`
	TrafficActive      bool      `json:"traffic_active"`
	ProbeStreamsActive bool      `json:"probe_streams_active"`
	MaxMeasuringSeconds int      `json:"max_measuring_seconds"`
}

type api struct {
	cfg        Config
	server     *http.Server
	router     *chi.Mux
	registry   *prometheus.Registry
	sessions   SessionLister
}

var _ API = (*api)(nil)

// New builds the admin API bound to cfg.ListeningAddress. registry collects
// every component's prometheus.Collectors (spec §6's components each expose
// GetMetricCollectors in the teacher's idiom); sessions backs /v1/sessions
// and may be nil if that listing is not wired up.
func New(cfg Config, registry *prometheus.Registry, sessions SessionLister) API {
	return &api{
		cfg: cfg,
		server: &http.Server{
			Addr:              cfg.ListeningAddress,
			ReadHeaderTimeout: 5 * time.Second,
		},
		router:   chi.NewRouter(),
		registry: registry,
		sessions: sessions,
	}
}

// RegisterRoutes mounts the fixed admin routes plus any extra ones passed
// in, mirroring the teacher's generic Route-slice registration so tests can
// exercise arbitrary method/path/handler combinations.
func (a *api) RegisterRoutes(ctx context.Context, routes ...Route) error {
	log := logger.FromContext(ctx)

	a.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	a.router.Get("/healthz", OkHandler(ctx).ServeHTTP)
	if a.registry != nil {
		a.router.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	}
	if a.sessions != nil {
		a.router.Get("/v1/sessions", a.listSessions)
		a.router.Get("/v1/openapi.json", a.serveOpenapi)
	}

	for _, route := range routes {
		switch route.Method {
		case http.MethodGet:
			a.router.Get(route.Path, route.Handler)
		case http.MethodPost:
			a.router.Post(route.Path, route.Handler)
		case http.MethodPut:
			a.router.Put(route.Path, route.Handler)
		case http.MethodPatch:
			a.router.Patch(route.Path, route.Handler)
		case http.MethodDelete:
			a.router.Delete(route.Path, route.Handler)
		case "*":
			a.router.HandleFunc(route.Path, route.Handler)
		default:
			log.ErrorContext(ctx, "unsupported route method", "method", route.Method, "path", route.Path)
			return errors.New("api: unsupported route method " + route.Method)
		}
	}

	a.server.Handler = a.router
	return nil
}

func (a *api) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.sessions.Sessions())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Run starts the HTTP server for the lifetime of ctx, serving TLS when
// configured. Returns ctx.Err() once ctx is cancelled, per the teacher's
// ErrApiContext-on-cancel contract.
func (a *api) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if a.cfg.Tls.Enabled {
			a.server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			err = a.server.ListenAndServeTLS(a.cfg.Tls.CertPath, a.cfg.Tls.KeyPath)
		} else {
			err = a.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.InfoContext(ctx, "admin api context cancelled")
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (a *api) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// OkHandler replies 200 "ok", used for /healthz and as the teacher's
// liveness-probe handler.
func OkHandler(ctx context.Context) http.Handler {
	log := logger.FromContext(ctx)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			log.ErrorContext(ctx, "failed to write ok response", "error", err)
		}
	})
}
