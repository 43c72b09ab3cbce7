package client

import "github.com/dewil-official/GeneralsGenniaMod/pkg/types"

type Route struct {
	From types.Position `json:"from"`
	To   types.Position `json:"to"`
	Half bool           `json:"half"`
}

// Highlighter is told when a route's target starts or stops being shown as
// queued on the board.
type Highlighter func(to types.Position, queued bool)

// CommandQueue buffers a player's moves ahead of the server. The front is
// submitted on each tick; the last submitted route keeps its highlight until
// the following tick.
type CommandQueue struct {
	items     []Route
	last      *Route
	highlight Highlighter
}

func NewCommandQueue(h Highlighter) *CommandQueue {
	if h == nil {
		h = func(types.Position, bool) {}
	}
	return &CommandQueue{highlight: h}
}

func (q *CommandQueue) Insert(r Route) {
	q.items = append(q.items, r)
	q.highlight(r.To, true)
}

// Pop removes the front and marks it as last submitted. The previous last
// submitted route loses its highlight.
func (q *CommandQueue) Pop() (Route, bool) {
	if len(q.items) == 0 {
		return Route{}, false
	}
	r := q.items[0]
	q.items = q.items[1:]
	if q.last != nil {
		q.highlight(q.last.To, false)
	}
	q.last = &r
	return r, true
}

// PopBack drops the most recently inserted route.
func (q *CommandQueue) PopBack() (Route, bool) {
	if len(q.items) == 0 {
		return Route{}, false
	}
	r := q.items[len(q.items)-1]
	q.items = q.items[:len(q.items)-1]
	q.highlight(r.To, false)
	return r, true
}

func (q *CommandQueue) Front() (Route, bool) {
	if len(q.items) == 0 {
		return Route{}, false
	}
	return q.items[0], true
}

func (q *CommandQueue) End() (Route, bool) {
	if len(q.items) == 0 {
		return Route{}, false
	}
	return q.items[len(q.items)-1], true
}

func (q *CommandQueue) IsEmpty() bool { return len(q.items) == 0 }
func (q *CommandQueue) Size() int     { return len(q.items) }

// LastSubmitted is the route popped most recently, if it is still tracked.
func (q *CommandQueue) LastSubmitted() (Route, bool) {
	if q.last == nil {
		return Route{}, false
	}
	return *q.last, true
}

func (q *CommandQueue) Clear() {
	for _, r := range q.items {
		q.highlight(r.To, false)
	}
	q.items = nil
	q.ClearLast()
}

func (q *CommandQueue) ClearLast() {
	if q.last != nil {
		q.highlight(q.last.To, false)
		q.last = nil
	}
}

// OnTick returns the route to submit for this tick. With nothing queued it
// only retires the last submitted marker.
func (q *CommandQueue) OnTick() (Route, bool) {
	if r, ok := q.Pop(); ok {
		return r, true
	}
	q.ClearLast()
	return Route{}, false
}

// OnAttackFailure handles a rejected move. Queued routes starting where the
// failed one was headed can no longer succeed; they are dropped, following
// the chain through each dropped route's target. It returns how many were
// dropped.
func (q *CommandQueue) OnAttackFailure(from, to types.Position) int {
	q.ClearLast()
	dropped := 0
	for len(q.items) > 0 && q.items[0].From == to {
		r := q.items[0]
		q.items = q.items[1:]
		q.highlight(r.To, false)
		to = r.To
		dropped++
	}
	return dropped
}
