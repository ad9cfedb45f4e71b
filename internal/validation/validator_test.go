package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name   string `validate:"required"`
	Action string `validate:"oneof=start stop"`
	Start  string `validate:"omitempty,hhmm"`
	Limit  int    `validate:"min=1,max=100"`
}

func TestStruct_Valid(t *testing.T) {
	err := Struct(sample{Name: "a", Action: "start", Start: "09:30", Limit: 10})
	assert.NoError(t, err)
}

func TestStruct_CollectsEveryField(t *testing.T) {
	err := Struct(sample{Action: "pause", Start: "25:00", Limit: 0})
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "Name is required")
	assert.Contains(t, msg, "Action must be one of [start stop]")
	assert.Contains(t, msg, "Start must be a HH:MM time")
	assert.Contains(t, msg, "Limit must be at least 1")
}
