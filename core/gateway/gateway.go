// Package gateway accepts media-stream connections over HTTP and binds each
// one to a new session.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	orchestration "github.com/koscakluka/ema-phone/core"
	"github.com/koscakluka/ema-phone/core/protocol"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	MediaStreamPath    = "/media-stream"
	HealthPath         = "/healthz"
	ProtocolSchemaPath = "/v1/protocol/schema"

	// DefaultReadLimit caps one socket message. A larger message closes the
	// connection, so it sits well above the session's frame size limit,
	// which rejects long utterances without ending the call.
	DefaultReadLimit = 16 << 20
)

// ProviderFactory builds the providers for one session. It is called only
// after every required credential has been found.
type ProviderFactory func(ctx context.Context) (orchestration.Providers, error)

// CredentialLookup returns the names of required credentials that are not
// configured.
type CredentialLookup func() []string

type Gateway struct {
	providers   ProviderFactory
	credentials CredentialLookup
	registry    *orchestration.Registry
	upgrader    websocket.Upgrader

	readLimit      int64
	sessionOptions []orchestration.SessionOption
}

type Option func(*Gateway)

func WithReadLimit(limit int64) Option {
	return func(g *Gateway) {
		if limit > 0 {
			g.readLimit = limit
		}
	}
}

func WithSessionOptions(opts ...orchestration.SessionOption) Option {
	return func(g *Gateway) {
		g.sessionOptions = append(g.sessionOptions, opts...)
	}
}

func WithRegistry(registry *orchestration.Registry) Option {
	return func(g *Gateway) {
		if registry != nil {
			g.registry = registry
		}
	}
}

func New(providers ProviderFactory, credentials CredentialLookup, opts ...Option) *Gateway {
	g := &Gateway{
		providers:   providers,
		credentials: credentials,
		registry:    orchestration.NewRegistry(),
		readLimit:   DefaultReadLimit,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			// Media streams are opened by the telephony platform, not by
			// browsers, so there is no origin to check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Registry() *orchestration.Registry { return g.registry }

// Handler serves the media stream together with the health and protocol
// schema endpoints.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(MediaStreamPath, g)
	mux.HandleFunc("GET "+HealthPath, g.serveHealth)
	mux.HandleFunc("GET "+ProtocolSchemaPath, serveProtocolSchema)
	return otelhttp.NewHandler(mux, "ema-phone",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// ServeHTTP accepts one media-stream connection and serves it until the
// session closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	span := trace.SpanFromContext(ctx)

	if missing := g.credentials(); len(missing) > 0 {
		err := &orchestration.ConfigurationError{Missing: missing}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "rejecting media stream", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "expected a websocket upgrade request", http.StatusBadRequest)
		return
	}
	if _, ok := w.(http.Hijacker); !ok {
		logger.ErrorContext(ctx, "response writer cannot be hijacked for websocket upgrade")
		http.Error(w, "websocket upgrade not supported", http.StatusInternalServerError)
		return
	}

	providers, err := g.providers(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "failed to build providers", "error", err)
		var configErr *orchestration.ConfigurationError
		if errors.As(err, &configErr) {
			http.Error(w, configErr.Error(), http.StatusInternalServerError)
			return
		}
		http.Error(w, "failed to initialise providers", http.StatusInternalServerError)
		return
	}

	// Upgrade has already written an error response when it fails.
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnContext(ctx, "websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(g.readLimit)

	session, err := orchestration.NewSession(context.WithoutCancel(ctx), conn, providers, g.sessionOptions...)
	if err != nil {
		logger.ErrorContext(ctx, "failed to create session", "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	g.registry.Track(session)

	session.Serve()
}

func (g *Gateway) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}{Status: "ok", Sessions: g.registry.Len()})
}

func serveProtocolSchema(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	_ = json.NewEncoder(w).Encode(protocol.Schema())
}
