package ffmpeg

import (
	"cmp"
	"fmt"
	"os/exec"
)

// Lookup resolves the FFmpeg binary. A configured path must be executable;
// an empty one searches PATH.
func Lookup(configured string) (string, error) {
	path, err := exec.LookPath(cmp.Or(configured, "ffmpeg"))
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found (configured path %q): %w", configured, err)
	}
	return path, nil
}
