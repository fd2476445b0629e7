// Package spinner draws a single animated status line on a terminal.
package spinner

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
)

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const interval = 80 * time.Millisecond

// Spinner animates a status line until Stop is called. The message may be
// changed while it runs.
type Spinner struct {
	w io.Writer

	mu      sync.Mutex
	message string
	width   int

	done     chan struct{}
	cleared  chan struct{}
	stopOnce sync.Once
}

// Start begins animating message on w.
func Start(w io.Writer, message string) *Spinner {
	s := &Spinner{
		w:       w,
		message: message,
		done:    make(chan struct{}),
		cleared: make(chan struct{}),
	}
	go s.loop()
	return s
}

// SetMessage replaces the text shown next to the spinner.
func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Stop halts the animation and clears the line. It is safe to call more than
// once.
func (s *Spinner) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	<-s.cleared
}

func (s *Spinner) loop() {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-s.done:
			s.mu.Lock()
			fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", s.width)) //nolint:errcheck
			s.mu.Unlock()
			close(s.cleared)
			return
		case <-ticker.C:
			s.draw(frames[i%len(frames)])
		}
	}
}

func (s *Spinner) draw(frame string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := frame + " " + s.message
	w := runewidth.StringWidth(line)
	// pad over a longer previous message
	pad := max(s.width-w, 0)
	fmt.Fprintf(s.w, "\r%s%s", line, strings.Repeat(" ", pad)) //nolint:errcheck
	s.width = max(s.width, w)
}
