package execx

import (
	"context"
	"fmt"
	"sync"
)

// FakeRunner is a recording Runner for backend unit tests: it never spawns a
// real process, just matches specs against registered responses in call order.
type FakeRunner struct {
	mu        sync.Mutex
	Responses []FakeResponse
	Calls     []Spec
	next      int
}

// FakeResponse is what the n-th call to Run returns.
type FakeResponse struct {
	Result Result
	Err    error
}

// Run implements Runner.
func (f *FakeRunner) Run(_ context.Context, spec Spec) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, spec)
	if f.next >= len(f.Responses) {
		return Result{}, fmt.Errorf("execx: fake runner has no response queued for call %d (%s %v)", f.next, spec.Command, spec.Args)
	}
	resp := f.Responses[f.next]
	f.next++
	return resp.Result, resp.Err
}

// CallCount returns how many invocations have been recorded.
func (f *FakeRunner) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
