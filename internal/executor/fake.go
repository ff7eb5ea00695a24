package executor

import (
	"context"
	"sync"

	"activator/internal/models"
)

// Call records one invocation of Fake.
type Call struct {
	Application string
	Address     string
	Command     string
	OS          string
}

// Fake is a scripted Executor. Each command has a queue of responses; the last
// response repeats once the queue is exhausted. Unknown commands return
// Default.
type Fake struct {
	mu        sync.Mutex
	responses map[string][]FakeResponse
	calls     []Call

	Default FakeResponse
}

// FakeResponse is what Fake returns for one call.
type FakeResponse struct {
	Result models.ExecResult
	Err    error
	Panic  any
	// Block, when set, is waited on before the response is returned.
	Block <-chan struct{}
}

// NewFake returns an empty Fake whose default response is a failure.
func NewFake() *Fake {
	return &Fake{
		responses: make(map[string][]FakeResponse),
		Default:   FakeResponse{Result: failure("no scripted response")},
	}
}

// On queues responses for command.
func (f *Fake) On(command string, responses ...FakeResponse) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[command] = append(f.responses[command], responses...)
	return f
}

// OnOutput queues a single response with the given success flag and output.
func (f *Fake) OnOutput(command string, succeeded bool, output string) *Fake {
	return f.On(command, FakeResponse{Result: models.ExecResult{Succeeded: succeeded, Output: output}})
}

// Execute implements Executor.
func (f *Fake) Execute(ctx context.Context, application, address, command, osFamily string) (models.ExecResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Application: application, Address: address, Command: command, OS: osFamily})
	resp := f.Default
	if queue := f.responses[command]; len(queue) > 0 {
		resp = queue[0]
		if len(queue) > 1 {
			f.responses[command] = queue[1:]
		}
	}
	f.mu.Unlock()

	if resp.Block != nil {
		select {
		case <-resp.Block:
		case <-ctx.Done():
			return models.ExecResult{}, ctx.Err()
		}
	}
	if resp.Panic != nil {
		panic(resp.Panic)
	}
	return resp.Result, resp.Err
}

// Calls returns a copy of every recorded call, in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Commands returns the command strings of every recorded call, in order.
func (f *Fake) Commands() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Command
	}
	return out
}
