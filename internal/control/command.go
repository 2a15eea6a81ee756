package control

import (
	"bytes"
	"unicode"

	"github.com/oszuidwest/zwfm-autorecorder/internal/types"
)

// ParseCommand matches a protocol line against the command keywords. Leading
// whitespace is skipped and the first keyword that prefixes the rest wins.
func ParseCommand(line []byte) (types.Command, bool) {
	line = bytes.TrimLeftFunc(line, unicode.IsSpace)
	for _, cmd := range types.Commands {
		if bytes.HasPrefix(line, []byte(cmd.String())) {
			return cmd, true
		}
	}
	return 0, false
}
