package upload

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/oszuidwest/zwfm-autorecorder/internal/util"
)

// CommandBackend hands each recording to an external program. The program
// receives the file path as its only argument; exit status 0 means uploaded.
type CommandBackend struct {
	command string
}

// NewCommandBackend creates a backend running command.
func NewCommandBackend(command string) *CommandBackend {
	return &CommandBackend{command: command}
}

// Name implements Backend.
func (b *CommandBackend) Name() string {
	return "command"
}

// Upload implements Backend.
func (b *CommandBackend) Upload(ctx context.Context, localPath string) (string, error) {
	cmd := exec.CommandContext(ctx, b.command, localPath)
	util.StopGracefully(cmd, 5*time.Second)

	var output util.StderrTail
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w", b.command, output.Annotate(err))
	}
	return b.command, nil
}
