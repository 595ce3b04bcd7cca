package tap

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hopdash/hopdash/dashboard/internal/transport"
	"github.com/hopdash/hopdash/pkg/frame"
)

// Phase is a lifecycle phase hooks can attach to.
type Phase int

const (
	PhaseOpen Phase = iota
	PhaseMessage
	PhaseClose

	numPhases
)

func (p Phase) String() string {
	switch p {
	case PhaseOpen:
		return "open"
	case PhaseMessage:
		return "message"
	case PhaseClose:
		return "close"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Event is what a hook receives.
type Event struct {
	Phase Phase

	// Raw and Frame are set for PhaseMessage.
	Raw   []byte
	Frame frame.Frame

	// Err is the transport's close cause for PhaseClose, nil after a clean close.
	Err error
}

// HookFunc is a registered callback. tr is the transport that produced the
// event; hooks must read the id or state from it rather than from a
// reference cached on an earlier event.
type HookFunc func(ev *Event, tr transport.Transport) error

// HookError reports one failed hook invocation.
type HookError struct {
	Phase Phase
	Index int
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("tap: %s hook #%d: %v", e.Phase, e.Index, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// Registry maps each phase to an ordered list of hooks. Hooks are never
// removed.
type Registry struct {
	mu    sync.Mutex
	hooks [numPhases][]HookFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends fn to the hooks for phase.
func (r *Registry) Register(phase Phase, fn HookFunc) {
	if phase < 0 || phase >= numPhases {
		panic(fmt.Sprintf("tap: register: invalid %s", phase))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[phase] = append(r.hooks[phase], fn)
}

// Len returns the number of hooks registered for phase.
func (r *Registry) Len(phase Phase) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hooks[phase])
}

// Run calls every hook for phase in registration order. A hook that returns
// an error or panics does not stop the ones after it. The failures are
// returned joined, each as a *HookError.
func (r *Registry) Run(phase Phase, ev *Event, tr transport.Transport) error {
	r.mu.Lock()
	hooks := r.hooks[phase]
	r.mu.Unlock()

	var errs []error
	for i, fn := range hooks {
		if err := invoke(fn, ev, tr); err != nil {
			errs = append(errs, &HookError{Phase: phase, Index: i, Err: err})
		}
	}
	return errors.Join(errs...)
}

func invoke(fn HookFunc, ev *Event, tr transport.Transport) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ev, tr)
}
