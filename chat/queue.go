package chat

// commandQueue is a bounded FIFO with an oldest-drop overflow policy: when
// full, the head (oldest) command is discarded to admit the new one, so the
// freshest operator intent survives. Single-goroutine use only.
type commandQueue struct {
	max   int
	items []Command
}

func newCommandQueue(max int) *commandQueue {
	if max <= 0 {
		max = 1
	}
	return &commandQueue{max: max}
}

// push appends cmd. When the queue is full it evicts and returns the oldest
// entry with dropped=true so the caller can emit a diagnostic.
func (q *commandQueue) push(cmd Command) (evicted Command, dropped bool) {
	if len(q.items) >= q.max {
		evicted, dropped = q.items[0], true
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
	}
	q.items = append(q.items, cmd)
	return evicted, dropped
}

// peek returns the oldest command without removing it.
func (q *commandQueue) peek() (Command, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// pop removes and returns the oldest command.
func (q *commandQueue) pop() (Command, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	cmd := q.items[0]
	copy(q.items, q.items[1:])
	q.items = q.items[:len(q.items)-1]
	return cmd, true
}

func (q *commandQueue) len() int { return len(q.items) }
