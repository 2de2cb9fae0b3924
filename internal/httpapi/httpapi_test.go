package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/roostlabs/roost/internal/router"
	"github.com/roostlabs/roost/internal/state"
	"github.com/roostlabs/roost/internal/store"
	"github.com/roostlabs/roost/internal/supervisor"
)

type fakeStates struct {
	mu        sync.Mutex
	states    map[string]state.BotState
	statesErr error

	startMarks map[string]state.InitConfig
	stops      []string
	restarts   []string
}

func newFakeStates() *fakeStates {
	return &fakeStates{
		states:     make(map[string]state.BotState),
		startMarks: make(map[string]state.InitConfig),
	}
}

func (f *fakeStates) States(ctx context.Context) (map[string]state.BotState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statesErr != nil {
		return nil, f.statesErr
	}
	out := make(map[string]state.BotState, len(f.states))
	for k, v := range f.states {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStates) State(ctx context.Context, botID string) state.BotState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.states[botID]; ok {
		return st
	}
	return state.StateIdle
}

func (f *fakeStates) MarkShouldStart(ctx context.Context, botID string, init state.InitConfig, agent state.AgentConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startMarks[botID] = init
	f.states[botID] = state.StateShouldStart
	return nil
}

func (f *fakeStates) MarkShouldStop(ctx context.Context, botID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, botID)
}

func (f *fakeStates) MarkShouldRestart(ctx context.Context, botID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts = append(f.restarts, botID)
}

type stubWorker struct {
	id   string
	snap router.Snapshot
}

func (w *stubWorker) BotID() string                   { return w.id }
func (w *stubWorker) Start(ctx context.Context) error { return nil }
func (w *stubWorker) Stop(ctx context.Context) error  { return nil }
func (w *stubWorker) Snapshot() router.Snapshot       { return w.snap }

type fakeRegistry struct {
	workers map[string]supervisor.Worker
}

func (f *fakeRegistry) Get(botID string) (supervisor.Worker, bool) {
	w, ok := f.workers[botID]
	return w, ok
}

func (f *fakeRegistry) List() []string {
	ids := make([]string, 0, len(f.workers))
	for id := range f.workers {
		ids = append(ids, id)
	}
	return ids
}

type fakeSource struct {
	inits  map[string]state.InitConfig
	agents map[string]state.AgentConfig
}

func (f *fakeSource) BotConfigs(ctx context.Context, botID string) (state.InitConfig, state.AgentConfig, error) {
	init, ok := f.inits[botID]
	if !ok {
		return state.InitConfig{}, state.AgentConfig{}, fmt.Errorf("bot %s: %w", botID, store.ErrNotFound)
	}
	return init, f.agents[botID], nil
}

func newTestAPI(token string) (*http.ServeMux, *fakeStates, *fakeRegistry, *fakeSource) {
	states := newFakeStates()
	registry := &fakeRegistry{workers: make(map[string]supervisor.Worker)}
	source := &fakeSource{
		inits:  make(map[string]state.InitConfig),
		agents: make(map[string]state.AgentConfig),
	}
	mux := http.NewServeMux()
	New(states, registry, source, token).RegisterRoutes(mux)
	return mux, states, registry, source
}

func do(mux *http.ServeMux, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

// TestHealthz verifies the liveness endpoint answers without auth.
func TestHealthz(t *testing.T) {
	mux, _, _, _ := newTestAPI("secret")

	rec := do(mux, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["status"] != "ok" {
		t.Fatalf("body = %v, want status ok", body)
	}
}

// TestListBots verifies the listing carries every known bot with its
// state and liveness, ordered by numeric id.
func TestListBots(t *testing.T) {
	mux, states, registry, _ := newTestAPI("")
	states.states["bot_1"] = state.StateRunning
	states.states["bot_2"] = state.StateIdle
	states.states["bot_10"] = state.StateShouldStart
	registry.workers["bot_1"] = &stubWorker{id: "bot_1"}

	rec := do(mux, http.MethodGet, "/v1/bots", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody[map[string][]botInfo](t, rec)
	bots := body["bots"]
	if len(bots) != 3 {
		t.Fatalf("len(bots) = %d, want 3", len(bots))
	}
	wantOrder := []string{"bot_1", "bot_2", "bot_10"}
	for i, want := range wantOrder {
		if bots[i].BotID != want {
			t.Fatalf("bots[%d].BotID = %q, want %q", i, bots[i].BotID, want)
		}
	}
	if !bots[0].Live {
		t.Fatal("bot_1 should be live")
	}
	if bots[1].Live || bots[2].Live {
		t.Fatal("bot_2 and bot_10 should not be live")
	}
	if bots[2].State != string(state.StateShouldStart) {
		t.Fatalf("bot_10 state = %q, want should_start", bots[2].State)
	}
}

// TestGetBot verifies the detail view and the invalid-id rejection.
func TestGetBot(t *testing.T) {
	mux, states, registry, _ := newTestAPI("")
	states.states["bot_7"] = state.StateRunning
	registry.workers["bot_7"] = &stubWorker{id: "bot_7"}

	rec := do(mux, http.MethodGet, "/v1/bots/bot_7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decodeBody[botInfo](t, rec)
	want := botInfo{BotID: "bot_7", State: "running", Live: true}
	if got != want {
		t.Fatalf("body = %+v, want %+v", got, want)
	}

	// Bots never seen by the state store read as idle.
	rec = do(mux, http.MethodGet, "/v1/bots/bot_9", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decodeBody[botInfo](t, rec); got.State != "idle" || got.Live {
		t.Fatalf("body = %+v, want idle and not live", got)
	}

	rec = do(mux, http.MethodGet, "/v1/bots/banana", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// TestStartBot verifies the start endpoint stages fresh rows and marks
// the intent, and that unknown bots 404.
func TestStartBot(t *testing.T) {
	mux, states, _, source := newTestAPI("")
	source.inits["bot_7"] = state.InitConfig{BotID: "bot_7", Token: "tok", CommandPrefix: "!"}
	source.agents["bot_7"] = state.AgentConfig{AppName: "bot_7", AgentID: 3, AgentName: "navi", Model: "gpt-4o-mini"}

	rec := do(mux, http.MethodPost, "/v1/bots/bot_7/start", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if got := states.startMarks["bot_7"].Token; got != "tok" {
		t.Fatalf("staged token = %q, want %q", got, "tok")
	}

	rec = do(mux, http.MethodPost, "/v1/bots/bot_8/start", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if _, marked := states.startMarks["bot_8"]; marked {
		t.Fatal("missing bot must not be marked")
	}
}

// TestStopAndRestart verifies both intent endpoints record their marks.
func TestStopAndRestart(t *testing.T) {
	mux, states, _, _ := newTestAPI("")

	rec := do(mux, http.MethodPost, "/v1/bots/bot_7/stop", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("stop status = %d, want 202", rec.Code)
	}
	if len(states.stops) != 1 || states.stops[0] != "bot_7" {
		t.Fatalf("stops = %v, want [bot_7]", states.stops)
	}

	rec = do(mux, http.MethodPost, "/v1/bots/bot_7/restart", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("restart status = %d, want 202", rec.Code)
	}
	if len(states.restarts) != 1 || states.restarts[0] != "bot_7" {
		t.Fatalf("restarts = %v, want [bot_7]", states.restarts)
	}

	rec = do(mux, http.MethodPost, "/v1/bots/nope/stop", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d, want 400", rec.Code)
	}
}

// TestBotQueues verifies the router snapshot passes through for live
// workers and 404s otherwise.
func TestBotQueues(t *testing.T) {
	mux, _, registry, _ := newTestAPI("")
	registry.workers["bot_7"] = &stubWorker{
		id: "bot_7",
		snap: router.Snapshot{
			Channels:     map[string]router.QueueStat{"dm:100": {Pending: 2, InFlight: true}},
			TotalPending: 2,
		},
	}

	rec := do(mux, http.MethodGet, "/v1/bots/bot_7/queues", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	snap := decodeBody[router.Snapshot](t, rec)
	if snap.TotalPending != 2 {
		t.Fatalf("total_pending = %d, want 2", snap.TotalPending)
	}
	if stat, ok := snap.Channels["dm:100"]; !ok || stat.Pending != 2 || !stat.InFlight {
		t.Fatalf("channels = %+v, want dm:100 pending 2 in flight", snap.Channels)
	}

	rec = do(mux, http.MethodGet, "/v1/bots/bot_8/queues", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

// TestAuth verifies bearer enforcement on the v1 surface.
func TestAuth(t *testing.T) {
	mux, states, _, _ := newTestAPI("secret")
	states.states["bot_1"] = state.StateRunning

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"wrong token", "nope", http.StatusUnauthorized},
		{"right token", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(mux, http.MethodGet, "/v1/bots", tt.token)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

// TestListBotsError verifies a state store failure maps to a 500.
func TestListBotsError(t *testing.T) {
	mux, states, _, _ := newTestAPI("")
	states.statesErr = errors.New("redis down")

	rec := do(mux, http.MethodGet, "/v1/bots", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
