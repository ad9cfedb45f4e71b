package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	out, unresolved := Render(
		"Halo {guardian_name}, {student_name} tiba pukul {time}. {unknown}",
		map[string]string{
			"guardian_name": "Ibu Sari",
			"student_name":  "Budi",
			"time":          "07:05",
		},
	)

	assert.Equal(t, "Halo Ibu Sari, Budi tiba pukul 07:05. {unknown}", out)
	assert.Equal(t, []string{"unknown"}, unresolved)
}

func TestRender_IgnoresNonPlaceholderBraces(t *testing.T) {
	out, unresolved := Render("json {} and { spaced } stay", nil)
	assert.Equal(t, "json {} and { spaced } stay", out)
	assert.Empty(t, unresolved)
}

func TestEventType_Valid(t *testing.T) {
	assert.True(t, EventCheckIn.Valid())
	assert.False(t, EventType("party").Valid())
}
