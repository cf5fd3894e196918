// Package mentor holds the mentor personas a live session can be started with.
package mentor

import (
	"fmt"
	"strings"
)

// Personality is a named system instruction.
type Personality struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Instruction string `json:"instruction"`
}

const (
	Friendly     = "friendly"
	Direct       = "direct"
	Enthusiastic = "enthusiastic"
	Analytical   = "analytical"

	// DefaultID is the personality used when none is selected.
	DefaultID = Analytical
)

var personalities = []Personality{
	{
		ID:          Friendly,
		Name:        "Friendly",
		Instruction: "You are a friendly and encouraging mentor for startup founders. Keep your responses concise and helpful.",
	},
	{
		ID:          Direct,
		Name:        "Direct",
		Instruction: "You are a direct and concise mentor for startup founders. Get straight to the point and provide actionable advice. Avoid fluff.",
	},
	{
		ID:          Enthusiastic,
		Name:        "Enthusiastic",
		Instruction: "You are an enthusiastic and motivating mentor for startup founders. Your goal is to inspire and energize. Use positive and uplifting language.",
	},
	{
		ID:          Analytical,
		Name:        "Analytical",
		Instruction: "You are an analytical and detailed mentor for startup founders. Provide in-depth, data-driven advice. Break down complex topics into smaller parts.",
	},
}

// All returns every personality in display order.
func All() []Personality {
	out := make([]Personality, len(personalities))
	copy(out, personalities)
	return out
}

// Lookup finds a personality by id, case-insensitively.
func Lookup(id string) (Personality, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range personalities {
		if p.ID == id {
			return p, nil
		}
	}
	return Personality{}, fmt.Errorf("unknown personality %q", id)
}

// Default returns the analytical personality.
func Default() Personality {
	p, _ := Lookup(DefaultID)
	return p
}
