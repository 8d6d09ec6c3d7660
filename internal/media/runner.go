package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var (
	// ErrUnreadableMedia indicates the container could not be probed.
	ErrUnreadableMedia = errors.New("unreadable media")
	// ErrTranscodeFailed indicates preview frames could not be rendered.
	ErrTranscodeFailed = errors.New("thumbnail transcode failed")
)

// CommandRunner executes external commands and returns stdout bytes.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

func defaultCommandRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.Bytes(), fmt.Errorf("%w: %s", err, lastLine(msg))
		}
		return stdout.Bytes(), err
	}
	return stdout.Bytes(), nil
}

// lastLine keeps error messages short; ffmpeg prints the cause last.
func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
