// Package alerttest records raised alerts for assertions.
package alerttest

import (
	"context"
	"sync"

	"github.com/bedtrack/bedtrack/internal/domain/alert"
)

type Sink struct {
	mu     sync.Mutex
	inputs []alert.Input
}

func (s *Sink) Create(_ context.Context, in alert.Input) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, in)
	return nil
}

func (s *Sink) All() []alert.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]alert.Input, len(s.inputs))
	copy(out, s.inputs)
	return out
}

// BySeverity returns the alerts raised with severity sev.
func (s *Sink) BySeverity(sev alert.Severity) []alert.Input {
	var out []alert.Input
	for _, in := range s.All() {
		if in.Severity == sev {
			out = append(out, in)
		}
	}
	return out
}
