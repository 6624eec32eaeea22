package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/transit-fraud/internal/cardlock"
	"github.com/example/transit-fraud/internal/detector"
	"github.com/example/transit-fraud/internal/dispatch"
	"github.com/example/transit-fraud/internal/identity"
	"github.com/example/transit-fraud/internal/models"
	"github.com/example/transit-fraud/internal/routes"
	"github.com/example/transit-fraud/internal/storage"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakePublisher struct {
	got []models.Swipe
	err error
}

func (f *fakePublisher) PublishSwipe(ctx context.Context, sw models.Swipe) error {
	f.got = append(f.got, sw)
	return f.err
}

type testEnv struct {
	srv   *Server
	store *storage.MemoryStore
	pub   *fakePublisher
}

func newTestServer(t *testing.T) testEnv {
	t.Helper()
	store := storage.NewMemoryStore()
	store.AddStation(models.Station{ID: 10, Name: "Bank"})
	store.AddStation(models.Station{ID: 20, Name: "Angel"})
	store.AddEdge(models.Edge{From: 10, To: 20, Distance: 2400, Time: 300})
	store.AddCard(models.Card{ID: 5})
	store.AddCard(models.Card{ID: 6})

	graph := identity.NewMemoryGraph(store)
	graph.AddPerson(models.Person{ID: 1, FirstName: "Ada", LastName: "Byron"})
	graph.AddPerson(models.Person{ID: 2, FirstName: "Kit", LastName: "Marlowe"})
	graph.AddAddress(models.Address{ID: 1, Address: "1 Main St"})
	graph.AddOwns(models.Owns{PersonID: 1, CardID: 5})
	graph.AddOwns(models.Owns{PersonID: 2, CardID: 6})
	graph.AddResides(models.Resides{PersonID: 1, AddressID: 1})
	graph.AddResides(models.Resides{PersonID: 2, AddressID: 1})
	linker := identity.NewLinker(graph, quiet)

	det := &detector.Service{
		Table:  routes.NewTable(),
		Ledger: store,
		Locks:  cardlock.NewLocal(),
		Linker: linker,
		Logger: quiet,
	}
	if _, err := det.Solve(context.Background()); err != nil {
		t.Fatalf("solve: %v", err)
	}
	pub := &fakePublisher{}
	srv := NewServer(Deps{Detector: det, Rings: linker, Ledger: store, Alerts: dispatch.NewHub(), Publisher: pub, Logger: quiet})
	return testEnv{srv: srv, store: store, pub: pub}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRecordThenCheckFlagsImpossibleTravel(t *testing.T) {
	env := newTestServer(t)

	rec := do(t, env.srv, "POST", "/api/v1/swipes", `{"card_id":5,"station_id":10,"timestamp":"2025-03-04T08:00:00Z"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("record: status %d body %s", rec.Code, rec.Body)
	}

	rec = do(t, env.srv, "POST", "/api/v1/swipes/check", `{"card_id":5,"station_id":20,"timestamp":"2025-03-04T08:02:00Z"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("check: status %d body %s", rec.Code, rec.Body)
	}
	var res models.CheckResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Status != models.StatusAnomaly || res.Detail.RequiredMinimum != 300 || res.Detail.Elapsed != 120 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Ring == nil || res.Ring.Empty() {
		t.Fatal("expected the suspect ring on the anomaly")
	}
	if c, _ := env.store.Card(5); !c.IsSuspect {
		t.Fatal("card should be flagged")
	}
}

func TestCheckErrorMapping(t *testing.T) {
	env := newTestServer(t)
	cases := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"card_id":`, http.StatusBadRequest},
		{"bad timestamp", `{"card_id":5,"station_id":10,"timestamp":"yesterday"}`, http.StatusBadRequest},
		{"unknown card", `{"card_id":404,"station_id":10,"timestamp":"2025-03-04T08:00:00Z"}`, http.StatusBadRequest},
		{"unknown station", `{"card_id":5,"station_id":99,"timestamp":"2025-03-04T08:00:00Z"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, env.srv, "POST", "/api/v1/swipes/check", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status %d, want %d (body %s)", rec.Code, tc.want, rec.Body)
			}
		})
	}
}

func TestRingEndpoint(t *testing.T) {
	env := newTestServer(t)
	rec := do(t, env.srv, "GET", "/api/v1/cards/5/ring", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var ring models.Ring
	if err := json.Unmarshal(rec.Body.Bytes(), &ring); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ring.Nodes) != 5 || len(ring.Edges) != 4 {
		t.Fatalf("expected 5 nodes and 4 edges, got %d/%d", len(ring.Nodes), len(ring.Edges))
	}

	rec = do(t, env.srv, "GET", "/api/v1/cards/abc/ring", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rec.Code)
	}
}

func TestLinkedEndpointEncodesEmptyList(t *testing.T) {
	env := newTestServer(t)
	rec := do(t, env.srv, "GET", "/api/v1/cards/5/linked", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %d %q", rec.Code, rec.Body)
	}
}

func TestRouteAndStationEndpoints(t *testing.T) {
	env := newTestServer(t)

	rec := do(t, env.srv, "GET", "/api/v1/routes/10/20", "")
	var route models.ShortestRoute
	if err := json.Unmarshal(rec.Body.Bytes(), &route); err != nil || route.Time != 300 {
		t.Fatalf("unexpected route %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, env.srv, "GET", "/api/v1/routes/20/10", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unreachable pair, got %d", rec.Code)
	}

	rec = do(t, env.srv, "GET", "/api/v1/stations/20", "")
	var st models.Station
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil || st.Name != "Angel" {
		t.Fatalf("unexpected station %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, env.srv, "GET", "/api/v1/stations/77", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown station, got %d", rec.Code)
	}
}

func TestSolveRejectsBadGraph(t *testing.T) {
	env := newTestServer(t)
	env.store.AddEdge(models.Edge{From: 10, To: 77, Time: 30})
	rec := do(t, env.srv, "POST", "/api/v1/routes/solve", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", rec.Code, rec.Body)
	}
}

func TestHistoryLimit(t *testing.T) {
	env := newTestServer(t)
	base := time.Date(2025, 3, 4, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		body := `{"card_id":6,"station_id":10,"timestamp":"` + base.Add(time.Duration(i)*time.Hour).Format(time.RFC3339) + `"}`
		if rec := do(t, env.srv, "POST", "/api/v1/swipes", body); rec.Code != http.StatusCreated {
			t.Fatalf("record %d: %d %s", i, rec.Code, rec.Body)
		}
	}
	rec := do(t, env.srv, "GET", "/api/v1/cards/6/history?limit=2", "")
	var rides []models.RideView
	if err := json.Unmarshal(rec.Body.Bytes(), &rides); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rides) != 2 || rides[0].StationName != "Bank" || !rides[0].Timestamp.After(rides[1].Timestamp) {
		t.Fatalf("unexpected history %+v", rides)
	}
	if rec := do(t, env.srv, "GET", "/api/v1/cards/6/history?limit=zero", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestAsyncSwipePublishes(t *testing.T) {
	env := newTestServer(t)
	rec := do(t, env.srv, "POST", "/api/v1/swipes/async", `{"card_id":5,"station_id":10,"timestamp":"2025-03-04T08:00:00Z"}`)
	if rec.Code != http.StatusAccepted || len(env.pub.got) != 1 {
		t.Fatalf("expected queued swipe, got %d with %d published", rec.Code, len(env.pub.got))
	}

	env.pub.err = errors.New("broker down")
	rec = do(t, env.srv, "POST", "/api/v1/swipes/async", `{"card_id":5,"station_id":10,"timestamp":"2025-03-04T08:00:00Z"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the broker fails, got %d", rec.Code)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	env := newTestServer(t)
	rec := do(t, env.srv, "GET", "/healthz", "")
	if rec.Code != http.StatusOK || rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("unexpected health response %d headers %v", rec.Code, rec.Header())
	}
	if rec := do(t, env.srv, "GET", "/ready", ""); rec.Code != http.StatusOK {
		t.Fatalf("ready: %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		models.ErrInvalidInput:   http.StatusBadRequest,
		models.ErrNotFound:       http.StatusNotFound,
		models.ErrConfig:         http.StatusUnprocessableEntity,
		models.ErrDependency:     http.StatusServiceUnavailable,
		errors.New("surprise"):   http.StatusInternalServerError,
		context.DeadlineExceeded: http.StatusGatewayTimeout,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Errorf("statusFor(%v) = %d, want %d", err, got, want)
		}
	}
}
