package video

import (
	"context"
	"sync"
)

// Fake is an in-memory Provider for tests and local runs.
//
// Gate, when set, blocks Initialize until it is closed or receives.
type Fake struct {
	mu           sync.Mutex
	InitErr      error
	Participants []ParticipantInfo
	Gate         chan struct{}
	confs        []*FakeConference
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Initialize(ctx context.Context, cfg JoinConfig) (Conference, error) {
	f.mu.Lock()
	gate := f.Gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InitErr != nil {
		return nil, f.InitErr
	}
	conf := &FakeConference{
		Config:       cfg,
		events:       make(chan Event, 16),
		participants: append([]ParticipantInfo(nil), f.Participants...),
	}
	f.confs = append(f.confs, conf)
	return conf, nil
}

func (f *Fake) SetInitErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InitErr = err
}

// Conferences returns every handle created so far.
func (f *Fake) Conferences() []*FakeConference {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeConference(nil), f.confs...)
}

// Live counts handles that were not disposed.
func (f *Fake) Live() int {
	n := 0
	for _, c := range f.Conferences() {
		if !c.Disposed() {
			n++
		}
	}
	return n
}

// Last returns the most recent handle or nil.
func (f *Fake) Last() *FakeConference {
	confs := f.Conferences()
	if len(confs) == 0 {
		return nil
	}
	return confs[len(confs)-1]
}

type ExecutedCommand struct {
	Command Command
	Args    []any
}

type FakeConference struct {
	Config JoinConfig

	mu           sync.Mutex
	events       chan Event
	participants []ParticipantInfo
	executed     []ExecutedCommand
	failOn       map[Command]error
	disposed     bool
}

func (c *FakeConference) Events() <-chan Event { return c.events }

// Emit delivers ev as if the widget reported it.
func (c *FakeConference) Emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.events <- ev
}

func (c *FakeConference) FailOn(cmd Command, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failOn == nil {
		c.failOn = make(map[Command]error)
	}
	c.failOn[cmd] = err
}

func (c *FakeConference) Execute(_ context.Context, cmd Command, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	c.executed = append(c.executed, ExecutedCommand{Command: cmd, Args: args})
	return c.failOn[cmd]
}

func (c *FakeConference) Participants(context.Context) ([]ParticipantInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil, ErrDisposed
	}
	return append([]ParticipantInfo(nil), c.participants...), nil
}

func (c *FakeConference) Dispose() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil
	}
	c.disposed = true
	close(c.events)
	return nil
}

func (c *FakeConference) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// Executed returns the commands sent so far, optionally filtered by name.
func (c *FakeConference) Executed(filter ...Command) []ExecutedCommand {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ExecutedCommand
	for _, e := range c.executed {
		if len(filter) == 0 || e.Command == filter[0] {
			out = append(out, e)
		}
	}
	return out
}
