// Package catalog is the static model and tool registry.
//
// Every model a bot may run is declared here with its pricing and, for
// rate-limited families, a sliding-window token budget. Config rows may
// carry historical model names; Resolve consults the alias table first,
// so callers always end up on a canonical entry or ErrUnknownModel.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Family groups models by vendor line.
type Family string

const (
	FamilyGemini Family = "gemini"
	FamilyGPT    Family = "gpt"
	FamilyGrok   Family = "grok"
	FamilyClaude Family = "claude"
)

// Policy says what the runner does when a request would exceed a
// model's window budget.
type Policy string

const (
	// PolicyDefer waits for the window to drain before running.
	PolicyDefer Policy = "defer"
	// PolicyReject fails the request with ErrRateLimited.
	PolicyReject Policy = "reject"
)

// Restriction is a sliding-window token budget for one model.
// A zero MaxTokens means the model is unrestricted.
type Restriction struct {
	MaxTokens int
	Interval  time.Duration
	Policy    Policy
}

// Limited reports whether the restriction carries a real budget.
func (r Restriction) Limited() bool { return r.MaxTokens > 0 }

// Spec is one catalog entry.
type Spec struct {
	Name             string
	Family           Family
	InputPricePer1M  float64
	OutputPricePer1M float64
	Restriction      Restriction
}

// LedgerKey is the state-store key fragment for this model's rate
// window: the canonical name with '-', '.' and '/' folded to '_'.
//
//	claude-sonnet-4-20250514 → claude_sonnet_4_20250514
//	xai/grok-3               → xai_grok_3
func (s Spec) LedgerKey() string {
	out := make([]byte, len(s.Name))
	for i := 0; i < len(s.Name); i++ {
		switch c := s.Name[i]; c {
		case '-', '.', '/':
			out[i] = '_'
		default:
			out[i] = c
		}
	}
	return string(out)
}

var (
	ErrUnknownModel = errors.New("unknown model")
	ErrUnknownTool  = errors.New("unknown tool")
)

const perMinute = 60 * time.Second

// specs is the canonical model table. Prices are USD per million
// tokens; both legs share the vendor's blended rate.
var specs = []Spec{
	{Name: "gemini-2.5-flash-preview-04-17", Family: FamilyGemini, InputPricePer1M: 0.26, OutputPricePer1M: 0.26},
	{Name: "gemini-2.5-pro-preview-05-06", Family: FamilyGemini, InputPricePer1M: 3.50, OutputPricePer1M: 3.50},
	{Name: "gpt-4.1", Family: FamilyGPT, InputPricePer1M: 3.50, OutputPricePer1M: 3.50},
	{Name: "gpt-4.1-nano", Family: FamilyGPT, InputPricePer1M: 0.17, OutputPricePer1M: 0.17},
	{Name: "gpt-4.1-mini", Family: FamilyGPT, InputPricePer1M: 0.70, OutputPricePer1M: 0.70},
	{Name: "gpt-4o", Family: FamilyGPT, InputPricePer1M: 3.50, OutputPricePer1M: 3.50},
	{Name: "gpt-4o-mini", Family: FamilyGPT, InputPricePer1M: 0.26, OutputPricePer1M: 0.26},
	{Name: "xai/grok-3-mini", Family: FamilyGrok, InputPricePer1M: 0.35, OutputPricePer1M: 0.35},
	{Name: "xai/grok-3", Family: FamilyGrok, InputPricePer1M: 6.00, OutputPricePer1M: 6.00},
	{Name: "claude-sonnet-4-20250514", Family: FamilyClaude, InputPricePer1M: 8.50, OutputPricePer1M: 8.50,
		Restriction: Restriction{MaxTokens: 20000, Interval: perMinute, Policy: PolicyDefer}},
	{Name: "claude-3-7-sonnet-latest", Family: FamilyClaude, InputPricePer1M: 8.50, OutputPricePer1M: 8.50,
		Restriction: Restriction{MaxTokens: 20000, Interval: perMinute, Policy: PolicyDefer}},
	{Name: "claude-3-5-haiku-latest", Family: FamilyClaude, InputPricePer1M: 2.40, OutputPricePer1M: 2.40},
}

// aliases map historical model names from stored config onto the
// canonical table.
var aliases = map[string]string{
	"gemini-2.5-flash":  "gemini-2.5-flash-preview-04-17",
	"gemini-2.5-pro":    "gemini-2.5-pro-preview-05-06",
	"claude-sonnet-4":   "claude-sonnet-4-20250514",
	"claude-3-7-sonnet": "claude-3-7-sonnet-latest",
	"claude-3-5-haiku":  "claude-3-5-haiku-latest",
	"grok-3":            "xai/grok-3",
	"grok-3-mini":       "xai/grok-3-mini",
}

var byName = func() map[string]Spec {
	m := make(map[string]Spec, len(specs))
	for _, s := range specs {
		m[s.Name] = s
	}
	return m
}()

// Resolve returns the catalog entry for name, following the alias
// table first. Unknown names after aliasing are a config error.
func Resolve(name string) (Spec, error) {
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	if s, ok := byName[name]; ok {
		return s, nil
	}
	return Spec{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// Names returns all canonical model names in table order.
func Names() []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Name
	}
	return out
}

// NamesBelowPrice returns canonical names whose input price is under
// maxPrice USD per million tokens.
func NamesBelowPrice(maxPrice float64) []string {
	var out []string
	for _, s := range specs {
		if s.InputPricePer1M < maxPrice {
			out = append(out, s.Name)
		}
	}
	return out
}

// Pricing returns the per-million-token prices for name, or (0, 0)
// when the model is unknown.
func Pricing(name string) (input, output float64) {
	s, err := Resolve(name)
	if err != nil {
		return 0, 0
	}
	return s.InputPricePer1M, s.OutputPricePer1M
}

// knownTools are the tool names accepted in agent config rows. Tool
// execution happens inside the engine; the core only validates names
// and maps them to display labels.
var knownTools = map[string]bool{
	"search":            true,
	"math":              true,
	"rpg_dice":          true,
	"life_env":          true,
	"note":              true,
	"summarizer":        true,
	"content_extractor": true,
}

// Tools returns the registered tool names, sorted.
func Tools() []string {
	out := make([]string, 0, len(knownTools))
	for name := range knownTools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ValidateTools checks every name in tools against the registry.
func ValidateTools(tools []string) error {
	for _, name := range tools {
		if !knownTools[name] {
			return fmt.Errorf("%w: %q", ErrUnknownTool, name)
		}
	}
	return nil
}
