package llm

import (
	"context"
	"sync"
)

// Step is one scripted provider outcome.
type Step struct {
	Completion *Completion
	Err        error
	// Block, when set, makes Complete wait for the channel to close (or
	// the context to end) before returning.
	Block <-chan struct{}
}

// Scripted is a Provider that replays Steps in order and records every
// request. Once the script runs out it returns Fallback.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	requests []Request
	Fallback Completion
}

// NewScripted returns a provider that replays steps.
func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps, Fallback: Completion{Text: "Interesting. Tell me more."}}
}

// Push appends more steps.
func (s *Scripted) Push(steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, steps...)
}

// Requests returns a copy of the recorded requests.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls is the number of Complete invocations so far.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Complete implements Provider.
func (s *Scripted) Complete(ctx context.Context, req Request) (*Completion, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	var step Step
	if len(s.steps) > 0 {
		step = s.steps[0]
		s.steps = s.steps[1:]
	} else {
		fallback := s.Fallback
		step = Step{Completion: &fallback}
	}
	s.mu.Unlock()

	if step.Block != nil {
		select {
		case <-step.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Completion, nil
}
