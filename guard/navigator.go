package guard

import "sync"

// Navigator is the screen-stack collaborator driven by the guard.
type Navigator interface {
	// Replace swaps the current route for route without growing the back stack.
	Replace(route string)
	Push(route string)
	Back()
}

// NavKind identifies a navigation operation.
type NavKind string

const (
	NavReplace NavKind = "replace"
	NavPush    NavKind = "push"
	NavBack    NavKind = "back"
)

// NavOp is one recorded navigation.
type NavOp struct {
	Kind  NavKind
	Route string
}

// History is an in-memory Navigator. It keeps the route stack and a log of every
// operation applied to it.
type History struct {
	mu         sync.Mutex
	stack      []string
	ops        []NavOp
	onNavigate func(NavOp, string)
}

// NewHistory returns a history positioned at initial, if non-empty.
func NewHistory(initial string) *History {
	h := &History{}
	if initial != "" {
		h.stack = append(h.stack, initial)
	}
	return h
}

// OnNavigate registers fn to be called after each operation with the new current
// route.
func (h *History) OnNavigate(fn func(op NavOp, current string)) {
	h.mu.Lock()
	h.onNavigate = fn
	h.mu.Unlock()
}

// Replace implements Navigator.
func (h *History) Replace(route string) {
	h.mu.Lock()
	if len(h.stack) == 0 {
		h.stack = append(h.stack, route)
	} else {
		h.stack[len(h.stack)-1] = route
	}
	h.record(NavOp{Kind: NavReplace, Route: route})
}

// Push implements Navigator.
func (h *History) Push(route string) {
	h.mu.Lock()
	h.stack = append(h.stack, route)
	h.record(NavOp{Kind: NavPush, Route: route})
}

// Back implements Navigator. The root route is never popped.
func (h *History) Back() {
	h.mu.Lock()
	if len(h.stack) > 1 {
		h.stack = h.stack[:len(h.stack)-1]
	}
	h.record(NavOp{Kind: NavBack})
}

// record appends op and releases h.mu before calling the hook.
func (h *History) record(op NavOp) {
	h.ops = append(h.ops, op)
	fn := h.onNavigate
	current := h.currentLocked()
	h.mu.Unlock()
	if fn != nil {
		fn(op, current)
	}
}

// Current returns the top route, or "" when empty.
func (h *History) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentLocked()
}

func (h *History) currentLocked() string {
	if len(h.stack) == 0 {
		return ""
	}
	return h.stack[len(h.stack)-1]
}

// Depth returns the number of routes on the stack.
func (h *History) Depth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.stack)
}

// Ops returns a copy of the operation log.
func (h *History) Ops() []NavOp {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]NavOp(nil), h.ops...)
}
