package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/lecture-agent/internal/events"
	"github.com/snarg/lecture-agent/internal/metrics"
)

// ErrAlreadyRecording is returned when Start is called on a non-idle session.
var ErrAlreadyRecording = errors.New("recording already in progress")

// State is the session's capture state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

// CaptureDevice is the underlying audio capture primitive.
type CaptureDevice interface {
	Start(ctx context.Context, path string) error
	Pause() error
	Resume() error
	Stop() error
}

// KeepAlive is an OS-level background-execution permit. Acquire failures
// are soft: capture proceeds with reduced reliability.
type KeepAlive interface {
	Acquire(ctx context.Context) error
	Release()
}

// Options configures a recording session.
type Options struct {
	Dir          string
	Extension    string // audio file extension without dot, default "m4a"
	Device       CaptureDevice
	KeepAlive    KeepAlive
	Bus          *events.Bus
	TickInterval time.Duration // default 1s
	Log          zerolog.Logger
}

// Snapshot is a point-in-time view of the session for observers.
type Snapshot struct {
	State          string  `json:"state"`
	Path           string  `json:"path,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Degraded       bool    `json:"degraded"` // no background-execution permit
}

// Session manages exactly one active capture stream at a time. State-change
// notifications go out on the event bus after the mutation's critical
// section ends, never from inside it.
type Session struct {
	opts Options
	log  zerolog.Logger

	mu          sync.Mutex
	state       State
	currentPath string
	elapsed     time.Duration // accumulated from completed recording segments
	segStart    time.Time     // start of the current recording segment
	degraded    bool
	tickCancel  context.CancelFunc
}

// NewSession creates an idle session.
func NewSession(opts Options) *Session {
	if opts.Extension == "" {
		opts.Extension = "m4a"
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.KeepAlive == nil {
		opts.KeepAlive = NoopKeepAlive{}
	}
	return &Session{
		opts: opts,
		log:  opts.Log.With().Str("component", "recorder").Logger(),
	}
}

// Start begins a new capture. Fails with ErrAlreadyRecording unless idle.
// Capture-primitive errors fail synchronously and leave the session idle.
func (s *Session) Start(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return "", ErrAlreadyRecording
	}

	if err := os.MkdirAll(s.opts.Dir, 0o755); err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("create recordings dir: %w", err)
	}
	path := filepath.Join(s.opts.Dir, time.Now().Format("20060102-150405")+"."+s.opts.Extension)

	// The permit is a soft requirement: some platforms don't need one.
	degraded := false
	if err := s.opts.KeepAlive.Acquire(ctx); err != nil {
		s.log.Warn().Err(err).Msg("background-execution permit not granted, capture may be interrupted")
		degraded = true
	}

	if err := s.opts.Device.Start(ctx, path); err != nil {
		if !degraded {
			s.opts.KeepAlive.Release()
		}
		s.mu.Unlock()
		return "", fmt.Errorf("start capture: %w", err)
	}

	s.state = StateRecording
	s.currentPath = path
	s.elapsed = 0
	s.segStart = time.Now()
	s.degraded = degraded

	tickCtx, cancel := context.WithCancel(context.Background())
	s.tickCancel = cancel
	s.mu.Unlock()

	go s.tickLoop(tickCtx)

	metrics.RecordingsStartedTotal.Inc()
	s.log.Info().Str("path", path).Bool("degraded", degraded).Msg("recording started")
	s.publish("started")
	return path, nil
}

// Pause suspends capture. No-op unless recording.
func (s *Session) Pause() {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	if err := s.opts.Device.Pause(); err != nil {
		s.log.Warn().Err(err).Msg("pause capture failed")
	}
	s.elapsed += time.Since(s.segStart)
	s.state = StatePaused
	s.mu.Unlock()

	s.publish("paused")
}

// Resume continues a paused capture. No-op unless paused.
func (s *Session) Resume() {
	s.mu.Lock()
	if s.state != StatePaused {
		s.mu.Unlock()
		return
	}
	if err := s.opts.Device.Resume(); err != nil {
		s.log.Warn().Err(err).Msg("resume capture failed")
	}
	s.segStart = time.Now()
	s.state = StateRecording
	s.mu.Unlock()

	s.publish("resumed")
}

// Stop ends the capture and returns the recorded file path. Returns "" when idle.
func (s *Session) Stop() string {
	path := s.teardown(false)
	if path != "" {
		s.log.Info().Str("path", path).Msg("recording stopped")
		s.publish("stopped")
	}
	return path
}

// Cancel ends the capture and discards the artifact.
func (s *Session) Cancel() {
	path := s.teardown(true)
	if path != "" {
		s.log.Info().Str("path", path).Msg("recording cancelled")
		s.publish("cancelled")
	}
}

func (s *Session) teardown(discard bool) string {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return ""
	}

	path := s.currentPath
	if s.state == StateRecording {
		s.elapsed += time.Since(s.segStart)
	}

	if s.tickCancel != nil {
		s.tickCancel()
		s.tickCancel = nil
	}
	if err := s.opts.Device.Stop(); err != nil {
		s.log.Warn().Err(err).Msg("stop capture failed")
	}
	if !s.degraded {
		s.opts.KeepAlive.Release()
	}

	s.state = StateIdle
	s.currentPath = ""
	s.degraded = false
	s.mu.Unlock()

	if discard {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", path).Msg("failed to remove cancelled recording")
		}
	}
	return path
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed returns accumulated active-recording time. Paused intervals don't count.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

func (s *Session) elapsedLocked() time.Duration {
	e := s.elapsed
	if s.state == StateRecording {
		e += time.Since(s.segStart)
	}
	return e
}

// Snapshot returns the session view for observers.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:          s.state.String(),
		Path:           s.currentPath,
		ElapsedSeconds: s.elapsedLocked().Seconds(),
		Degraded:       s.degraded,
	}
}

// tickLoop publishes the elapsed-time indicator update once per tick while
// the session is live.
func (s *Session) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publish("tick")
		}
	}
}

func (s *Session) publish(action string) {
	if s.opts.Bus == nil {
		return
	}
	s.opts.Bus.Publish(events.Event{
		Type:   events.TypeSession,
		Action: action,
		Data:   s.Snapshot(),
	})
}
