package recorder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// FFmpegDevice captures microphone audio by running ffmpeg against an audio
// backend (pulse, alsa). Pause/Resume use SIGSTOP/SIGCONT on the capture
// process; Stop sends SIGINT so ffmpeg finalizes the container cleanly.
type FFmpegDevice struct {
	backend string
	input   string
	log     zerolog.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}

	// lastErr has its own lock: the stderr reader updates it while Start
	// holds mu waiting on the immediate-exit check.
	errMu   sync.Mutex
	lastErr string
}

// NewFFmpegDevice creates a capture device for the given backend and input
// (e.g. "pulse"/"default").
func NewFFmpegDevice(backend, input string, log zerolog.Logger) *FFmpegDevice {
	return &FFmpegDevice{
		backend: backend,
		input:   input,
		log:     log.With().Str("component", "capture").Logger(),
	}
}

// CheckFFmpeg reports whether ffmpeg is available in PATH.
func CheckFFmpeg() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// Start launches the capture process writing to path. Fails synchronously
// when the process cannot start or dies immediately (e.g. no capture device
// or missing permission).
func (d *FFmpegDevice) Start(ctx context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd != nil {
		return errors.New("capture already running")
	}

	args := []string{
		"-y",
		"-f", d.backend,
		"-i", d.input,
	}
	args = append(args, encoderArgs(filepath.Ext(path))...)
	args = append(args, "-nostats", path)

	cmd := exec.Command("ffmpeg", args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	done := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				d.errMu.Lock()
				d.lastErr = line
				d.errMu.Unlock()
			}
		}
		cmd.Wait()
		close(done)
	}()

	// Catch immediate failures (bad device, no permission) before declaring
	// the capture started.
	select {
	case <-done:
		d.cmd = nil
		d.errMu.Lock()
		lastErr := d.lastErr
		d.errMu.Unlock()
		if lastErr != "" {
			return fmt.Errorf("ffmpeg exited: %s", lastErr)
		}
		return errors.New("ffmpeg exited immediately")
	case <-ctx.Done():
		cmd.Process.Kill()
		return ctx.Err()
	case <-time.After(300 * time.Millisecond):
	}

	d.cmd = cmd
	d.done = done
	d.log.Debug().Str("path", path).Msg("capture started")
	return nil
}

// Pause suspends the capture process.
func (d *FFmpegDevice) Pause() error {
	return d.signal(syscall.SIGSTOP)
}

// Resume continues a suspended capture process.
func (d *FFmpegDevice) Resume() error {
	return d.signal(syscall.SIGCONT)
}

// Stop asks ffmpeg to finish writing and waits for it to exit.
func (d *FFmpegDevice) Stop() error {
	d.mu.Lock()
	cmd, done := d.cmd, d.done
	d.cmd = nil
	d.done = nil
	d.mu.Unlock()

	if cmd == nil {
		return nil
	}

	// SIGCONT first in case the process is paused; a stopped process won't
	// handle SIGINT.
	cmd.Process.Signal(syscall.SIGCONT)
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		cmd.Process.Kill()
		return nil
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		d.log.Warn().Msg("ffmpeg did not exit after SIGINT, killing")
		cmd.Process.Kill()
		<-done
	}
	return nil
}

func (d *FFmpegDevice) signal(sig syscall.Signal) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd == nil {
		return errors.New("capture not running")
	}
	return d.cmd.Process.Signal(sig)
}

// encoderArgs picks the audio codec flags for the output extension.
func encoderArgs(ext string) []string {
	switch strings.ToLower(ext) {
	case ".m4a", ".aac":
		return []string{"-codec:a", "aac", "-b:a", "128k"}
	case ".mp3":
		return []string{"-codec:a", "libmp3lame", "-b:a", "128k"}
	case ".ogg":
		return []string{"-codec:a", "libvorbis", "-qscale:a", "5"}
	case ".flac":
		return []string{"-codec:a", "flac"}
	default:
		return []string{"-codec:a", "pcm_s16le"}
	}
}
