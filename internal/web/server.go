// Package web exposes the HTTP surface: the Twilio messaging webhook,
// the Stripe billing webhook, health, and metrics.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/voxlate/internal/billing"
	"github.com/haasonsaas/voxlate/internal/channel/twilio"
	"github.com/haasonsaas/voxlate/internal/config"
	"github.com/haasonsaas/voxlate/internal/dispatch"
	"github.com/haasonsaas/voxlate/internal/observability"
)

// MessagingChannel verifies inbound webhooks and sends replies. The
// Twilio client satisfies this.
type MessagingChannel interface {
	VerifyWebhook(signature, fullURL string, params url.Values) bool
	dispatch.Sender
}

// Dispatcher accepts normalized inbound messages.
type Dispatcher interface {
	HandleInbound(in dispatch.Inbound, send dispatch.Sender)
}

// StripeWebhook processes billing events.
type StripeWebhook interface {
	HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error
}

// Server is the HTTP front of the bot.
type Server struct {
	cfg        config.ServerConfig
	twilioCfg  config.TwilioConfig
	channel    MessagingChannel
	dispatcher Dispatcher
	stripe     StripeWebhook
	logger     *observability.Logger
	metrics    *observability.Metrics

	httpServer *http.Server
}

// NewServer wires the routes. channel and stripe may be nil when the
// corresponding integration is disabled.
func NewServer(cfg config.ServerConfig, twilioCfg config.TwilioConfig,
	channel MessagingChannel, dispatcher Dispatcher, stripe StripeWebhook,
	logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		cfg:        cfg,
		twilioCfg:  twilioCfg,
		channel:    channel,
		dispatcher: dispatcher,
		stripe:     stripe,
		logger:     logger,
		metrics:    metrics,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Handler returns the route tree, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/messaging", s.handleMessaging)
	mux.HandleFunc("POST /webhook/stripe", s.handleStripe)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return s.withRequestLogging(mux)
}

// Start serves until ctx is canceled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info(ctx, "http server listening", "addr", s.cfg.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// handleMessaging receives Twilio webhook deliveries. It acks with
// empty TwiML immediately; replies go out through the Messages API.
func (s *Server) handleMessaging(w http.ResponseWriter, r *http.Request) {
	if s.channel == nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	if s.twilioCfg.VerifySignature {
		sig := r.Header.Get("X-Twilio-Signature")
		if !s.channel.VerifyWebhook(sig, s.webhookURL(r), r.PostForm) {
			s.logger.Warn(r.Context(), "webhook signature rejected")
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
	}

	in := twilio.ParseInbound(r.PostForm)
	s.dispatcher.HandleInbound(dispatch.Inbound{
		Channel:          "twilio",
		MessageID:        in.MessageSID,
		From:             in.From,
		Body:             in.Body,
		MediaURL:         in.MediaURL,
		MediaContentType: in.MediaContentType,
	}, s.channel)

	w.Header().Set("Content-Type", "text/xml")
	_, _ = io.WriteString(w, twilio.EmptyTwiML)
}

// webhookURL reconstructs the URL Twilio signed. Behind a proxy the
// request URL is not it, so the configured public URL wins.
func (s *Server) webhookURL(r *http.Request) string {
	if s.cfg.PublicURL != "" {
		return s.cfg.PublicURL + r.URL.Path
	}
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, r.URL.Path)
}

// handleStripe verifies and applies one billing event. Transient
// failures return 500 so Stripe redelivers.
func (s *Server) handleStripe(w http.ResponseWriter, r *http.Request) {
	if s.stripe == nil {
		http.NotFound(w, r)
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	err = s.stripe.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, billing.ErrBadSignature):
		s.logger.Warn(r.Context(), "stripe signature rejected")
		http.Error(w, "invalid signature", http.StatusBadRequest)
	case err != nil:
		s.logger.Error(r.Context(), "stripe webhook failed", "error", err)
		http.Error(w, "processing error", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"status":"ok"}`)
}

// statusRecorder captures the response code for logs and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := observability.WithRequestID(r.Context(), uuid.NewString())
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r.WithContext(ctx))

		elapsed := time.Since(start)
		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(rec.status), elapsed.Seconds())
		}
		s.logger.Info(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}
