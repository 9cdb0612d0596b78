// Package web provides the HTTP surface of the motorhome controller: relay
// and sensor queries, relay toggling and the dashboard page.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/antural/motorhome-central/internal/state"
)

// Reader is the read-only view of device state the server and the
// dashboard renderer are given.
type Reader interface {
	AllRelayStates() ([]state.ChannelState, error)
	RelayState(ch int) (state.State, error)
	SensorSnapshot() state.SensorSnapshot
	Auxiliary() state.Auxiliary
	Status() (state.Status, error)
}

// Toggler flips a relay and returns its new state.
type Toggler interface {
	Toggle(ch int) (state.State, error)
}

// Options configures a Server.
type Options struct {
	Addr        string
	CORSOrigins []string     // allowed origins for the JSON API; none disables CORS
	Metrics     http.Handler // served at /metrics when set
	Logger      *zap.Logger
}

// Server serves the relay/sensor API and dashboard over HTTP.
type Server struct {
	httpServer *http.Server
	reader     Reader
	toggler    Toggler
	logger     *zap.Logger
}

// New creates a Server that reads state from reader and switches relays
// through toggler.
func New(opts Options, reader Reader, toggler Toggler) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{reader: reader, toggler: toggler, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	// Surface consumed by the dashboard and existing clients.
	r.HandleFunc("/toggle4ch", s.handleToggleQuery).Methods(http.MethodGet)
	r.HandleFunc("/estados", s.handleRelays).Methods(http.MethodGet)
	r.HandleFunc("/sensores", s.handleSensors).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	// Registered on the root router: a method mismatch inside a PathPrefix
	// subrouter surfaces as 404 instead of 405.
	r.HandleFunc("/api/relays", s.handleRelays).Methods(http.MethodGet)
	r.HandleFunc("/api/relays/{ch}", s.handleRelay).Methods(http.MethodGet)
	r.HandleFunc("/api/relays/{ch}/toggle", s.handleTogglePath).Methods(http.MethodPost)
	r.HandleFunc("/api/sensors", s.handleSensors).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	var h http.Handler = r
	if len(opts.CORSOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(opts.CORSOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		)(h)
	}
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(logger)),
		handlers.PrintRecoveryStack(false),
	)(h)
	h = handlers.LoggingHandler(zap.NewStdLog(logger.Named("http")).Writer(), h)

	s.httpServer = &http.Server{
		Addr:    opts.Addr,
		Handler: h,
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := newPage(s.reader)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, page); err != nil {
		s.logger.Warn("render dashboard", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthJSON{Status: "ok"})
}

func (s *Server) handleRelays(w http.ResponseWriter, r *http.Request) {
	relays, err := s.reader.AllRelayStates()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state.NewRelayStatesJSON(relays))
}

func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	ch, err := parseChannel(mux.Vars(r)["ch"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	st, err := s.reader.RelayState(ch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state.RelayStatesJSON{state.ChannelKey(ch): string(st)})
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, state.NewSensorsJSON(s.reader.SensorSnapshot(), s.reader.Auxiliary()))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.reader.Status()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state.NewAggregateJSON(st))
}

// handleToggleQuery serves GET /toggle4ch?ch=N and answers "OK" as plain text.
func (s *Server) handleToggleQuery(w http.ResponseWriter, r *http.Request) {
	ch, err := parseChannel(r.URL.Query().Get("ch"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.toggle(ch); err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

func (s *Server) handleTogglePath(w http.ResponseWriter, r *http.Request) {
	ch, err := parseChannel(mux.Vars(r)["ch"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	st, err := s.toggle(ch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleJSON{Channel: ch, State: string(st)})
}

func (s *Server) toggle(ch int) (state.State, error) {
	st, err := s.toggler.Toggle(ch)
	if err != nil {
		return "", err
	}
	s.logger.Info("relay toggled over http", zap.Int("channel", ch), zap.String("state", string(st)))
	return st, nil
}

// parseChannel converts a request parameter to a channel number. Anything
// that is not an integer is an invalid channel.
func parseChannel(v string) (int, error) {
	ch, err := strconv.Atoi(v)
	if err != nil {
		return 0, state.ErrInvalidChannel
	}
	return ch, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, state.ErrInvalidChannel) {
		writeJSON(w, http.StatusBadRequest, ErrorJSON{Error: "invalid channel"})
		return
	}
	s.logger.Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, ErrorJSON{Error: err.Error()})
}
