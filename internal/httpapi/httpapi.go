// Package httpapi serves the control-plane surface of the run process.
// Row CRUD stays with external tooling; these endpoints only observe
// and drive the lifecycle state machine.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/roostlabs/roost/internal/state"
	"github.com/roostlabs/roost/internal/store"
	"github.com/roostlabs/roost/internal/supervisor"
)

// StateAPI is the slice of the state store the control plane drives.
type StateAPI interface {
	States(ctx context.Context) (map[string]state.BotState, error)
	State(ctx context.Context, botID string) state.BotState
	MarkShouldStart(ctx context.Context, botID string, init state.InitConfig, agent state.AgentConfig) error
	MarkShouldStop(ctx context.Context, botID string)
	MarkShouldRestart(ctx context.Context, botID string)
}

// Registry exposes worker liveness to the read endpoints.
type Registry interface {
	Get(botID string) (supervisor.Worker, bool)
	List() []string
}

// Handler serves the bot lifecycle endpoints.
type Handler struct {
	states   StateAPI
	registry Registry
	source   supervisor.ConfigSource
	token    string
}

// New creates a handler. An empty token disables authentication.
func New(states StateAPI, registry Registry, source supervisor.ConfigSource, token string) *Handler {
	return &Handler{states: states, registry: registry, source: source, token: token}
}

// RegisterRoutes registers all lifecycle routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleHealth)

	mux.HandleFunc("GET /v1/bots", h.auth(h.handleListBots))
	mux.HandleFunc("GET /v1/bots/{id}", h.auth(h.handleGetBot))
	mux.HandleFunc("POST /v1/bots/{id}/start", h.auth(h.handleStartBot))
	mux.HandleFunc("POST /v1/bots/{id}/stop", h.auth(h.handleStopBot))
	mux.HandleFunc("POST /v1/bots/{id}/restart", h.auth(h.handleRestartBot))
	mux.HandleFunc("GET /v1/bots/{id}/queues", h.auth(h.handleBotQueues))
}

func (h *Handler) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" {
			if extractBearerToken(r) != h.token {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
		}
		next(w, r)
	}
}

// botInfo is the wire form of one bot's lifecycle view.
type botInfo struct {
	BotID string `json:"bot_id"`
	State string `json:"state"`
	Live  bool   `json:"live"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListBots(w http.ResponseWriter, r *http.Request) {
	states, err := h.states.States(r.Context())
	if err != nil {
		slog.Error("bots.list", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list bots"})
		return
	}

	bots := make([]botInfo, 0, len(states))
	for id, st := range states {
		_, live := h.registry.Get(id)
		bots = append(bots, botInfo{BotID: id, State: string(st), Live: live})
	}
	sort.Slice(bots, func(i, j int) bool {
		a, aok := store.ParseBotID(bots[i].BotID)
		b, bok := store.ParseBotID(bots[j].BotID)
		if aok && bok {
			return a < b
		}
		return bots[i].BotID < bots[j].BotID
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{"bots": bots})
}

func (h *Handler) handleGetBot(w http.ResponseWriter, r *http.Request) {
	id, ok := botID(w, r)
	if !ok {
		return
	}
	_, live := h.registry.Get(id)
	writeJSON(w, http.StatusOK, botInfo{
		BotID: id,
		State: string(h.states.State(r.Context(), id)),
		Live:  live,
	})
}

// handleStartBot stages fresh config rows in the state store and marks
// the bot for start; the reconciler picks the intent up on its next tick.
func (h *Handler) handleStartBot(w http.ResponseWriter, r *http.Request) {
	id, ok := botID(w, r)
	if !ok {
		return
	}

	init, agent, err := h.source.BotConfigs(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "bot not found"})
			return
		}
		slog.Error("bots.start", "bot_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load bot config"})
		return
	}

	if err := h.states.MarkShouldStart(r.Context(), id, init, agent); err != nil {
		slog.Error("bots.start", "bot_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "starting"})
}

func (h *Handler) handleStopBot(w http.ResponseWriter, r *http.Request) {
	id, ok := botID(w, r)
	if !ok {
		return
	}
	h.states.MarkShouldStop(r.Context(), id)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func (h *Handler) handleRestartBot(w http.ResponseWriter, r *http.Request) {
	id, ok := botID(w, r)
	if !ok {
		return
	}
	h.states.MarkShouldRestart(r.Context(), id)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "restarting"})
}

func (h *Handler) handleBotQueues(w http.ResponseWriter, r *http.Request) {
	id, ok := botID(w, r)
	if !ok {
		return
	}
	worker, live := h.registry.Get(id)
	if !live {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "bot not running"})
		return
	}
	writeJSON(w, http.StatusOK, worker.Snapshot())
}

// botID validates the path id and writes the 400 itself on bad input.
func botID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if _, ok := store.ParseBotID(id); !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid bot ID"})
		return "", false
	}
	return id, true
}

func extractBearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
