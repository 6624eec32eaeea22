package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/transit-fraud/internal/detector"
	"github.com/example/transit-fraud/internal/dispatch"
	"github.com/example/transit-fraud/internal/logging"
	"github.com/example/transit-fraud/internal/models"
	"github.com/example/transit-fraud/internal/storage"
)

// Rings expands a card into its identity ring and co-owned cards.
type Rings interface {
	Link(ctx context.Context, cardID int64) (models.Ring, error)
	CoOwned(ctx context.Context, cardID int64) ([]models.LinkedCard, error)
}

// SwipePublisher queues swipes for the consumer.
type SwipePublisher interface {
	PublishSwipe(ctx context.Context, sw models.Swipe) error
}

type Deps struct {
	Detector     *detector.Service
	Rings        Rings
	Ledger       storage.Ledger
	Alerts       *dispatch.Hub
	Publisher    SwipePublisher // optional
	HistoryLimit int
	Logger       *slog.Logger
}

type Server struct {
	detector     *detector.Service
	rings        Rings
	ledger       storage.Ledger
	alerts       *dispatch.Hub
	publisher    SwipePublisher
	historyLimit int
	logger       *slog.Logger
	mux          *mux.Router
}

func NewServer(d Deps) *Server {
	limit := d.HistoryLimit
	if limit <= 0 {
		limit = storage.DefaultHistoryLimit
	}
	s := &Server{
		detector:     d.Detector,
		rings:        d.Rings,
		ledger:       d.Ledger,
		alerts:       d.Alerts,
		publisher:    d.Publisher,
		historyLimit: limit,
		logger:       logging.Component(d.Logger, "http"),
		mux:          mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/routes/solve", s.handleSolve).Methods("POST")
	api.HandleFunc("/routes/{from}/{to}", s.handleRoute).Methods("GET")
	api.HandleFunc("/swipes/check", s.handleCheck).Methods("POST")
	api.HandleFunc("/swipes", s.handleRecord).Methods("POST")
	api.HandleFunc("/swipes/async", s.handlePublish).Methods("POST")
	api.HandleFunc("/cards/{id}/ring", s.handleRing).Methods("GET")
	api.HandleFunc("/cards/{id}/linked", s.handleLinked).Methods("GET")
	api.HandleFunc("/cards/{id}/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/stations/{id}", s.handleStation).Methods("GET")

	s.mux.HandleFunc("/ws/alerts", s.handleAlerts)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	solved, err := s.detector.Solve(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"routes": len(solved)})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	from, err := pathID(r, "from")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := pathID(r, "to")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	route, ok := s.detector.Table.Lookup(from, to)
	if !ok {
		http.Error(w, "no route", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	sw, ok := decodeSwipe(w, r)
	if !ok {
		return
	}
	res, err := s.detector.CheckSwipe(r.Context(), sw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	sw, ok := decodeSwipe(w, r)
	if !ok {
		return
	}
	ride, res, err := s.detector.RecordSwipe(r.Context(), sw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ride": ride, "result": res})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil {
		http.Error(w, "swipe queue not configured", http.StatusServiceUnavailable)
		return
	}
	sw, ok := decodeSwipe(w, r)
	if !ok {
		return
	}
	if err := s.publisher.PublishSwipe(r.Context(), sw); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", models.ErrDependency, err))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ring, err := s.rings.Link(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ring)
}

func (s *Server) handleLinked(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cards, err := s.rings.CoOwned(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if cards == nil {
		cards = []models.LinkedCard{}
	}
	writeJSON(w, http.StatusOK, cards)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit := s.historyLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	rides, err := s.ledger.History(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", models.ErrDependency, err))
		return
	}
	writeJSON(w, http.StatusOK, rides)
}

func (s *Server) handleStation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.ledger.Station(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Ping(r.Context()); err != nil {
		http.Error(w, "ledger not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(200)
	w.Write([]byte("ready"))
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.alerts.Add(uuid.NewString(), conn)
}

func decodeSwipe(w http.ResponseWriter, r *http.Request) (models.Swipe, bool) {
	var sw models.Swipe
	if err := json.NewDecoder(r.Body).Decode(&sw); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return models.Swipe{}, false
	}
	return sw, true
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", models.ErrInvalidInput, name)
	}
	return id, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConfig):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrDependency):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= 500 {
		s.logger.Error("request failed", "route", routeTemplate(r), "request_id", requestIDFromContext(r.Context()), "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
