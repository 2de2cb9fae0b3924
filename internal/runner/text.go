package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/roostlabs/roost/internal/state"
)

// chunkSize is the chat service's message length cap in characters.
const chunkSize = 2000

// reservedMarkers are model-side tokens that must never reach chat.
var reservedMarkers = []string{"<start_of_audio>", "<end_of_audio>"}

// Chunks strips reserved markers and slices text into send-ready pieces.
// Slicing is by rune so a multi-byte character never splits across two
// messages. Whitespace-only pieces are dropped.
func Chunks(text string) []string {
	for _, marker := range reservedMarkers {
		text = strings.ReplaceAll(text, marker, "")
	}
	if text == "" {
		return nil
	}
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += chunkSize {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := string(runes[start:end])
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		out = append(out, chunk)
	}
	return out
}

// functionLabel renders the placeholder emitted while the agent runs a
// function. Mapped names show their human label, the rest stay neutral.
func functionLabel(displayMap map[string]string, name string) string {
	if label, ok := displayMap[name]; ok && label != "" {
		return "(" + label + "...)"
	}
	return "(......)"
}

// userInfoExplainer tells the model how to read the context preamble the
// worker prepends to every query.
const userInfoExplainer = "IMPORTANT: Each user message will include user context information at the beginning in the following format:\n" +
	"[USER_INFO]\n" +
	"User ID: <user_id>\n" +
	"Username: <username>\n" +
	"Display Name: <display_name> (if different from username)\n" +
	"Channel Type: <Direct Message|Text Channel>\n" +
	"Channel Name: <channel_name> (for text channels)\n" +
	"Server Name: <server_name> (for text channels)\n" +
	"[/USER_INFO]\n\n" +
	"Use this information to provide personalized responses and understand the context of the conversation. " +
	"The actual user message follows after the [/USER_INFO] section.\n\n"

// Instruction assembles the system instruction for one run: the context
// explainer, the agent's role and tool instructions, and the current time.
func Instruction(cfg state.AgentConfig, now time.Time) string {
	zone, _ := now.Zone()
	timeLine := fmt.Sprintf("The current time is %s (%s).", now.Format("2006-01-02 15:04:05"), zone)
	return userInfoExplainer + cfg.RoleInstructions + "\n\n" + cfg.ToolInstructions + "\n\n" + timeLine
}
