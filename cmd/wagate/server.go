package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"wagate/internal/constants"
	"wagate/internal/events"
	"wagate/internal/metrics"
	"wagate/internal/models"
	"wagate/internal/service"
	"wagate/internal/tracing"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Server struct {
	router     *mux.Router
	logger     *logrus.Logger
	cfg        *models.Config
	session    *service.SessionManager
	dispatcher *events.Dispatcher
	server     *http.Server
}

func NewServer(cfg *models.Config, session *service.SessionManager, dispatcher *events.Dispatcher, logger *logrus.Logger) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		logger:     logger,
		cfg:        cfg,
		session:    session,
		dispatcher: dispatcher,
	}

	s.router.Use(s.observabilityMiddleware)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	session := s.router.PathPrefix("/session").Subrouter()
	session.HandleFunc("/status", s.handleSessionStatus()).Methods(http.MethodGet)
	session.HandleFunc("/qr", s.handleSessionQR()).Methods(http.MethodGet)

	s.router.HandleFunc("/events", s.handleEventStream()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(constants.DefaultServerReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(constants.DefaultServerWriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(constants.DefaultServerIdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			s.logger.WithError(err).Warn("Failed to write health response")
		}
	}
}

func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(metrics.GetRegistry().Snapshot()); err != nil {
			s.logger.WithError(err).Warn("Failed to encode metrics snapshot")
		}
	}
}

func (s *Server) handleSessionStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := struct {
			Session   string `json:"session"`
			Condition string `json:"condition"`
			QRPending bool   `json:"qr_pending"`
		}{
			Session:   s.session.SessionName(),
			Condition: string(s.session.Condition()),
			QRPending: s.session.QRImage() != nil,
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			s.logger.WithError(err).Warn("Failed to encode session status")
		}
	}
}

// handleSessionQR serves the pending pairing QR as a PNG. 404 when the
// session is connected or no pairing code has arrived yet.
func (s *Server) handleSessionQR() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		png := s.session.QRImage()
		if png == nil {
			http.Error(w, "no pairing in progress", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		if _, err := w.Write(png); err != nil {
			s.logger.WithError(err).Warn("Failed to write QR image")
		}
	}
}

// handleEventStream upgrades to a websocket and pushes one JSON envelope per
// normalized event until the client disconnects.
func (s *Server) handleEventStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to accept event stream connection")
			return
		}
		defer conn.Close(websocket.StatusInternalError, "stream closed")

		ch, cancel := s.dispatcher.Subscribe(constants.DefaultEventStreamBuffer)
		defer cancel()

		metrics.IncrementCounter("event_stream_connections", nil, "Event stream connections accepted")
		s.logger.WithField("remote", r.RemoteAddr).Info("Event stream connected")

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "server shutting down")
				return
			case env, ok := <-ch:
				if !ok {
					conn.Close(websocket.StatusNormalClosure, "subscription closed")
					return
				}
				data, err := json.Marshal(env)
				if err != nil {
					s.logger.WithError(err).Warn("Failed to marshal event envelope")
					continue
				}
				if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
					s.logger.WithError(err).Debug("Event stream client disconnected")
					return
				}
			}
		}
	}
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// observabilityMiddleware attaches a span and request ID to each request and
// records per-endpoint counters.
func (s *Server) observabilityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), "http_request",
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
		)
		defer span.End()

		requestID := tracing.GenerateRequestID()
		ctx = tracing.WithRequestID(ctx, requestID)
		ctx = tracing.WithStartTime(ctx, time.Now())
		r = r.WithContext(ctx)

		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		metrics.IncrementCounter("http_requests_total", map[string]string{
			"method":   r.Method,
			"endpoint": r.URL.Path,
		}, "Total HTTP requests")

		next.ServeHTTP(wrapper, r)

		duration := tracing.Duration(ctx)
		tracing.AddSpanAttributes(ctx,
			attribute.Int("http.response.status_code", wrapper.statusCode),
			attribute.Int64("http.request.duration_ms", duration.Milliseconds()),
		)
		if wrapper.statusCode >= 400 {
			tracing.SetSpanStatus(ctx, codes.Error, fmt.Sprintf("HTTP %d", wrapper.statusCode))
		} else {
			tracing.SetSpanStatus(ctx, codes.Ok, "")
		}

		metrics.IncrementCounter("http_responses_total", map[string]string{
			"method":      r.Method,
			"endpoint":    r.URL.Path,
			"status_code": strconv.Itoa(wrapper.statusCode),
		}, "HTTP responses by status code")

		s.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     wrapper.statusCode,
			"duration":   duration.String(),
		}).Debug("HTTP request completed")
	})
}
