package logger

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// sinkColors are the ANSI foreground codes cycled across client sinks so
// interleaved client output stays readable on a terminal.
var sinkColors = []int{32, 33, 34, 35, 36, 37, 39, 91, 93, 94, 95, 96}

// Sink is a per-client log destination: an append-only file in the
// workspace plus a colored echo through the process logger.
type Sink struct {
	mu    sync.Mutex
	f     *os.File
	label string
	color int
	echo  bool
}

// NewSink opens (or creates) the sink file for a client. colorSeed selects
// a stable ANSI color for the client's terminal echo; pass the client uid.
func NewSink(path, label string, colorSeed int) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open client log %q: %w", path, err)
	}
	return &Sink{
		f:     f,
		label: label,
		color: sinkColors[colorSeed%len(sinkColors)],
		echo:  true,
	}, nil
}

// SetEcho controls whether sink lines are echoed through the process
// logger as well as written to the file.
func (s *Sink) SetEcho(on bool) {
	s.mu.Lock()
	s.echo = on
	s.mu.Unlock()
}

// Log writes one line to the sink file and echoes it to the process log.
// File write failures are reported through the process logger and do not
// propagate; losing a client log line never disturbs the campaign.
func (s *Sink) Log(level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := fmt.Sprintf("%s [%s]: %s\n", time.Now().Format("2006-01-02 15:04:05"), level, message)
	if _, err := s.f.WriteString(line); err != nil {
		Warn("failed to write client log line", "client", s.label, "error", err)
	}
	if s.echo {
		Info(fmt.Sprintf("\033[%dm[%s]\033[0m %s", s.color, s.label, message))
	}
}

// Close releases the sink file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
