package recorder

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
)

// NoopKeepAlive is the permit for platforms that don't suspend background
// capture.
type NoopKeepAlive struct{}

func (NoopKeepAlive) Acquire(ctx context.Context) error { return nil }
func (NoopKeepAlive) Release()                          {}

// SystemdInhibitor holds a logind inhibitor lock while recording so the
// machine doesn't sleep or idle out mid-capture. The lock is held by a
// systemd-inhibit child process that lives until Release.
type SystemdInhibitor struct {
	log zerolog.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewSystemdInhibitor creates an inhibitor-based keepalive.
func NewSystemdInhibitor(log zerolog.Logger) *SystemdInhibitor {
	return &SystemdInhibitor{log: log.With().Str("component", "keepalive").Logger()}
}

// Available reports whether systemd-inhibit exists in PATH.
func (k *SystemdInhibitor) Available() bool {
	_, err := exec.LookPath("systemd-inhibit")
	return err == nil
}

func (k *SystemdInhibitor) Acquire(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.cmd != nil {
		return nil
	}

	cmd := exec.Command("systemd-inhibit",
		"--what=sleep:idle",
		"--who=lecture-agent",
		"--why=recording audio",
		"--mode=block",
		"sleep", "infinity",
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("acquire inhibitor: %w", err)
	}

	k.cmd = cmd
	k.log.Debug().Msg("inhibitor lock acquired")
	return nil
}

func (k *SystemdInhibitor) Release() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.cmd == nil {
		return
	}
	k.cmd.Process.Kill()
	k.cmd.Wait()
	k.cmd = nil
	k.log.Debug().Msg("inhibitor lock released")
}
