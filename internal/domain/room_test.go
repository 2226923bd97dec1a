package domain

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateRoomName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "lobby", "lobby"},
		{"exact", strings.Repeat("a", MaxRoomNameLen), strings.Repeat("a", MaxRoomNameLen)},
		{"ascii over", strings.Repeat("a", MaxRoomNameLen+5), strings.Repeat("a", MaxRoomNameLen)},
		// 63 ASCII bytes then a 2-byte rune straddling the limit.
		{"rune on boundary", strings.Repeat("a", MaxRoomNameLen-1) + "é" + "tail", strings.Repeat("a", MaxRoomNameLen-1)},
		// 3-byte runes: 21 fit in 63 bytes, the 22nd would cross the limit.
		{"multibyte only", strings.Repeat("語", 30), strings.Repeat("語", 21)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(TruncateRoomName(tt.in))
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), MaxRoomNameLen)
		})
	}
}
