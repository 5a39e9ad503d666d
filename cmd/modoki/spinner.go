package main

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// spinner renders an in-place activity indicator while a model call is
// in flight. It stays silent when styled output is off, so piped runs
// see clean text.
type spinner struct {
	out io.Writer

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func newSpinner(out io.Writer) *spinner { return &spinner{out: out} }

func (s *spinner) Start(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || !colorsOn {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.spin(message, s.stop, s.done)
}

func (s *spinner) spin(message string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
			frame := spinnerFrames[i%len(spinnerFrames)]
			fmt.Fprintf(s.out, "\r  %s %s", paint(cyanStyle, frame), paint(dimStyle, message))
		}
	}
}

// Stop halts the animation and clears the spinner line. Safe to call
// when the spinner never started.
func (s *spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
	<-s.done
	fmt.Fprint(s.out, "\r\033[K")
}
