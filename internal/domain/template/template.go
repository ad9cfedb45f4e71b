// Package template holds message templates with named {placeholders}.
package template

import (
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventCheckIn  EventType = "check_in"
	EventCheckOut EventType = "check_out"
	EventLate     EventType = "late"
	EventAbsent   EventType = "absent"
	EventGeneral  EventType = "general"
)

var ErrNotFound = errors.New("template not found")

// Valid reports whether e is a known event type.
func (e EventType) Valid() bool {
	switch e {
	case EventCheckIn, EventCheckOut, EventLate, EventAbsent, EventGeneral:
		return true
	default:
		return false
	}
}

// Template is the body used for one (event, language) pair.
type Template struct {
	ID        uuid.UUID
	Event     EventType
	Language  string
	Name      string
	Body      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

var placeholder = regexp.MustCompile(`\{([a-zA-Z][a-zA-Z0-9_]*)\}`)

// Render substitutes {name} placeholders from vars. Unknown placeholders are
// left as literal text and returned in unresolved, in order of appearance.
func Render(body string, vars map[string]string) (out string, unresolved []string) {
	out = placeholder.ReplaceAllStringFunc(body, func(tok string) string {
		key := tok[1 : len(tok)-1]
		if v, ok := vars[key]; ok {
			return v
		}
		unresolved = append(unresolved, key)
		return tok
	})
	return out, unresolved
}
