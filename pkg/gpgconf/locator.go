// pkg/gpgconf/locator.go
// Thin wrapper around the external `gpgconf` helper binary, used to resolve
// the canonical agent socket path the remote proxy must bind. This package
// deliberately does not reimplement gpgconf's directory logic -- it only
// shells out and parses the one line of output the proxy needs.
package gpgconf

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Locator resolves gpgconf-managed paths. The binary name is configurable so
// tests can point it at a fake executable.
type Locator struct {
	Binary  string        // default "gpgconf"
	Timeout time.Duration // default 3s
}

// NewLocator returns a Locator with defaults.
func NewLocator() *Locator {
	return &Locator{Binary: "gpgconf", Timeout: 3 * time.Second}
}

// AgentSocketPath runs `gpgconf --list-dirs agent-socket` and returns the
// canonical Unix socket path the proxy must bind.
func (l *Locator) AgentSocketPath(ctx context.Context) (string, error) {
	return l.listDir(ctx, "agent-socket")
}

// AgentExtraSocketPath runs `gpgconf --list-dirs agent-extra-socket`,
// returning the restricted-command-set socket this bridge's host side
// dials.
func (l *Locator) AgentExtraSocketPath(ctx context.Context) (string, error) {
	return l.listDir(ctx, "agent-extra-socket")
}

func (l *Locator) listDir(ctx context.Context, key string) (string, error) {
	binary := l.Binary
	if binary == "" {
		binary = "gpgconf"
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, binary, "--list-dirs", key)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("gpgconf: %s: %w", key, err)
	}

	path := strings.TrimSpace(out.String())
	if path == "" {
		return "", fmt.Errorf("gpgconf: %s: empty output", key)
	}
	return path, nil
}
