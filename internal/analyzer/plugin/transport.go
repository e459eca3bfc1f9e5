package plugin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Transport delivers one encoded request to a plugin and returns its raw
// response.
type Transport interface {
	Invoke(ctx context.Context, request []byte) ([]byte, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, request []byte) ([]byte, error)

func (f TransportFunc) Invoke(ctx context.Context, request []byte) ([]byte, error) {
	return f(ctx, request)
}

// ExecTransport runs Command once per request, writing the request to its
// stdin and reading the response from stdout.
type ExecTransport struct {
	Command string
	Args    []string
	Dir     string
	Timeout time.Duration
}

func (t *ExecTransport) Invoke(ctx context.Context, request []byte) ([]byte, error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, t.Command, t.Args...)
	cmd.Dir = t.Dir
	cmd.Stdin = bytes.NewReader(request)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("plugin %s: %w: %s", t.Command, err, msg)
		}
		return nil, fmt.Errorf("plugin %s: %w", t.Command, err)
	}
	return stdout.Bytes(), nil
}
