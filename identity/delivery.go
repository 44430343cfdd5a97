package identity

import "sync"

const mailboxSize = 64

// mailbox delivers states to one listener on its own goroutine, in post order.
type mailbox struct {
	fn   Listener
	ch   chan *Identity
	done chan struct{}
	once sync.Once
}

func newMailbox(fn Listener) *mailbox {
	m := &mailbox{
		fn:   fn,
		ch:   make(chan *Identity, mailboxSize),
		done: make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *mailbox) run() {
	for {
		select {
		case <-m.done:
			return
		case id := <-m.ch:
			select {
			case <-m.done:
				return
			default:
			}
			m.fn(id)
		}
	}
}

// post blocks while the mailbox is full, preserving order.
func (m *mailbox) post(id *Identity) {
	select {
	case m.ch <- id.Clone():
	case <-m.done:
	}
}

func (m *mailbox) close() {
	m.once.Do(func() { close(m.done) })
}

// fanout tracks the mailboxes of one provider.
type fanout struct {
	mu     sync.Mutex
	nextID uint64
	boxes  map[uint64]*mailbox
}

// add registers fn. When known is set, initial is delivered first.
func (f *fanout) add(fn Listener, initial *Identity, known bool) func() {
	f.mu.Lock()
	if f.boxes == nil {
		f.boxes = make(map[uint64]*mailbox)
	}
	f.nextID++
	id := f.nextID
	box := newMailbox(fn)
	f.boxes[id] = box
	if known {
		box.post(initial)
	}
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.boxes, id)
		f.mu.Unlock()
		box.close()
	}
}

func (f *fanout) broadcast(id *Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, box := range f.boxes {
		box.post(id)
	}
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, box := range f.boxes {
		box.close()
		delete(f.boxes, key)
	}
}

func (f *fanout) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.boxes)
}
