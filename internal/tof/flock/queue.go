package flock

// pendingQueue is a growable ring of results that were fetched but not yet
// delivered. Both ends can be popped.
type pendingQueue struct {
	buf  []Result
	head int
	n    int
}

func newPendingQueue(capacity int) pendingQueue {
	return pendingQueue{buf: make([]Result, capacity)}
}

func (q *pendingQueue) len() int { return q.n }

// push appends r and reports whether the ring had to grow.
func (q *pendingQueue) push(r Result) bool {
	grew := false
	if q.n == len(q.buf) {
		q.grow()
		grew = true
	}
	q.buf[(q.head+q.n)%len(q.buf)] = r
	q.n++
	return grew
}

func (q *pendingQueue) grow() {
	size := 2 * len(q.buf)
	if size == 0 {
		size = 1
	}
	buf := make([]Result, size)
	for i := 0; i < q.n; i++ {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf, q.head = buf, 0
}

func (q *pendingQueue) popFront() (Result, bool) {
	if q.n == 0 {
		return Result{}, false
	}
	r := q.buf[q.head]
	q.buf[q.head] = Result{}
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return r, true
}

func (q *pendingQueue) popBack() (Result, bool) {
	if q.n == 0 {
		return Result{}, false
	}
	i := (q.head + q.n - 1) % len(q.buf)
	r := q.buf[i]
	q.buf[i] = Result{}
	q.n--
	return r, true
}

func (q *pendingQueue) reset() {
	for i := range q.buf {
		q.buf[i] = Result{}
	}
	q.head, q.n = 0, 0
}
