package contact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
		err  bool
	}{
		{"+62 812-3456-7890", "6281234567890", false},
		{"081234567890", "6281234567890", false},
		{"6281234567890@s.whatsapp.net", "6281234567890", false},
		{"(021) 555.1234", "62215551234", false},
		{"12345", "", true},
		{"0812abc", "", true},
		{"1234567890123456", "", true},
		{"", "", true},
	}

	for _, tc := range cases {
		got, err := NormalizePhone(tc.in, "62")
		if tc.err {
			assert.ErrorIs(t, err, ErrInvalidPhone, tc.in)
			continue
		}
		assert.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
