package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/roostlabs/roost/internal/engine"
	"github.com/roostlabs/roost/internal/store"
)

const persistTimeout = 5 * time.Second

// Run streams one agent turn. The transcript is loaded up front; the user
// and model turns are appended only after the stream completes, so a
// failed run leaves the conversation untouched.
func (e *Engine) Run(ctx context.Context, appName, sessionID, userKey, message string, spec engine.RunSpec) (<-chan engine.Event, error) {
	if spec.Model == "" {
		return nil, errors.New("run spec has no model")
	}
	history, err := e.sessions.Messages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	contents := historyContents(history)
	contents = append(contents, &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: message}},
	})

	config := &genai.GenerateContentConfig{}
	if spec.Instruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: spec.Instruction}},
		}
	}

	events := make(chan engine.Event, 16)
	go e.stream(ctx, events, sessionID, spec.Model, message, contents, config)
	return events, nil
}

func (e *Engine) stream(ctx context.Context, events chan<- engine.Event, sessionID, model, userMessage string, contents []*genai.Content, config *genai.GenerateContentConfig) {
	defer close(events)

	emit := func(ev engine.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// Text deltas accumulate into one final event; only function calls
	// surface mid-run. A reply therefore reaches chat exactly once.
	var full strings.Builder
	for resp, err := range e.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			slog.Error("generate stream failed", "session_id", sessionID, "model", model, "error", err)
			emit(engine.Event{Err: fmt.Errorf("generate content: %w", err)})
			return
		}
		for _, part := range responseParts(resp) {
			switch {
			case part.FunctionCall != nil:
				if !emit(engine.Event{Kind: engine.EventFunctionCall, FunctionName: part.FunctionCall.Name}) {
					return
				}
			case part.FunctionResponse != nil:
				if !emit(engine.Event{Kind: engine.EventFunctionResponse, FunctionName: part.FunctionResponse.Name}) {
					return
				}
			case part.Text != "":
				full.WriteString(part.Text)
			}
		}
	}

	e.persistTurns(sessionID, userMessage, full.String())
	emit(engine.Event{Kind: engine.EventFinal, Text: full.String()})
}

func responseParts(resp *genai.GenerateContentResponse) []*genai.Part {
	var parts []*genai.Part
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		parts = append(parts, cand.Content.Parts...)
	}
	return parts
}

// persistTurns appends the exchange on its own context so a cancelled run
// consumer cannot lose a completed turn.
func (e *Engine) persistTurns(sessionID, userMessage, modelText string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	turns := []store.MessageRow{encodeTurn("user", userMessage)}
	if modelText != "" {
		turns = append(turns, encodeTurn("model", modelText))
	}
	if err := e.sessions.AppendMessages(ctx, sessionID, turns); err != nil {
		slog.Warn("transcript append failed", "session_id", sessionID, "error", err)
	}
}

func encodeTurn(role, text string) store.MessageRow {
	content, _ := json.Marshal(&genai.Content{
		Role:  role,
		Parts: []*genai.Part{{Text: text}},
	})
	return store.MessageRow{Role: role, Content: content}
}

// historyContents rebuilds the conversation from persisted rows. Rows
// that no longer decode are skipped.
func historyContents(rows []store.MessageRow) []*genai.Content {
	var history []*genai.Content
	for _, row := range rows {
		if len(row.Content) == 0 {
			continue
		}
		var content genai.Content
		if err := json.Unmarshal(row.Content, &content); err != nil {
			slog.Warn("skipping unreadable transcript row", "message_id", row.ID, "error", err)
			continue
		}
		if content.Role == "" {
			content.Role = row.Role
		}
		history = append(history, &content)
	}
	return history
}
