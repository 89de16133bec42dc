// Package queue implements the three bounded-queue variants on top of
// two semaphore.Semaphores (free_slots/available_items) plus the
// scheduler's own critical section for the handful of index updates
// enqueue/dequeue needs: Fifo (no priority on elements), Message
// (priority-ordered ring), and Raw (opaque fixed-size byte records, for
// callers that don't want a Go generic instantiation per element
// type). Fifo takes caller-provided backing storage; Message and Raw
// allocate theirs once, in their constructors. None allocates after
// construction.
//
// Go has no placement-construction, so the C++ try_emplace* family
// collapses into TryPush/TryPush*: there is no separate in-place
// constructor call to distinguish it from copying a value in.
package queue

import (
	"distortos/kernel"
	"distortos/semaphore"
)

// Fifo is a bounded queue of T with no ordering among elements beyond
// arrival order.
type Fifo[T any] struct {
	scheduler *kernel.Scheduler
	storage   []T
	head      int
	count     int

	freeSlots      *semaphore.Semaphore
	availableItems *semaphore.Semaphore
}

// NewFifo returns a Fifo backed by storage; its capacity is len(storage).
func NewFifo[T any](scheduler *kernel.Scheduler, storage []T) *Fifo[T] {
	n := len(storage)
	return &Fifo[T]{
		scheduler:      scheduler,
		storage:        storage,
		freeSlots:      semaphore.New(scheduler, n, n),
		availableItems: semaphore.New(scheduler, 0, n),
	}
}

func (q *Fifo[T]) enqueue(v T) {
	q.scheduler.Lock()
	q.storage[(q.head+q.count)%len(q.storage)] = v
	q.count++
	q.scheduler.Unlock()
}

func (q *Fifo[T]) dequeue() T {
	q.scheduler.Lock()
	v := q.storage[q.head]
	q.head = (q.head + 1) % len(q.storage)
	q.count--
	q.scheduler.Unlock()
	return v
}

// Push blocks until a slot is free, then enqueues v.
func (q *Fifo[T]) Push(v T) error {
	if err := q.freeSlots.Wait(); err != nil {
		return err
	}
	q.enqueue(v)
	return q.availableItems.Post()
}

// Pop blocks until an element is available, then dequeues it.
func (q *Fifo[T]) Pop() (T, error) {
	var zero T
	if err := q.availableItems.Wait(); err != nil {
		return zero, err
	}
	v := q.dequeue()
	if err := q.freeSlots.Post(); err != nil {
		return zero, err
	}
	return v, nil
}

// TryPush is the non-blocking form: EAGAIN if the queue is full. Legal
// from interrupt context.
func (q *Fifo[T]) TryPush(v T) error {
	if err := q.freeSlots.TryWait(); err != nil {
		return err
	}
	q.enqueue(v)
	return q.availableItems.PostFromInterrupt()
}

// TryPop is the non-blocking form: EAGAIN if the queue is empty. Legal
// from interrupt context.
func (q *Fifo[T]) TryPop() (T, error) {
	var zero T
	if err := q.availableItems.TryWait(); err != nil {
		return zero, err
	}
	v := q.dequeue()
	if err := q.freeSlots.PostFromInterrupt(); err != nil {
		return zero, err
	}
	return v, nil
}

// TryPushUntil blocks with a deadline; ETIMEDOUT if it elapses before a
// slot frees up.
func (q *Fifo[T]) TryPushUntil(deadline uint64, v T) error {
	if err := q.freeSlots.TryWaitUntil(deadline); err != nil {
		return err
	}
	q.enqueue(v)
	return q.availableItems.Post()
}

// TryPopUntil blocks with a deadline; ETIMEDOUT if it elapses before an
// element arrives.
func (q *Fifo[T]) TryPopUntil(deadline uint64) (T, error) {
	var zero T
	if err := q.availableItems.TryWaitUntil(deadline); err != nil {
		return zero, err
	}
	v := q.dequeue()
	if err := q.freeSlots.Post(); err != nil {
		return zero, err
	}
	return v, nil
}

// TryPushFor blocks for at most timeoutTicks ticks.
func (q *Fifo[T]) TryPushFor(timeoutTicks uint64, v T) error {
	return q.TryPushUntil(q.scheduler.GetTickCount()+timeoutTicks, v)
}

// TryPopFor blocks for at most timeoutTicks ticks.
func (q *Fifo[T]) TryPopFor(timeoutTicks uint64) (T, error) {
	return q.TryPopUntil(q.scheduler.GetTickCount() + timeoutTicks)
}

// Len reports the number of elements currently queued.
func (q *Fifo[T]) Len() int {
	q.scheduler.Lock()
	defer q.scheduler.Unlock()
	return q.count
}

// prioritizedElement pairs a value with the small unsigned priority
// Message's ring keeps it ordered by.
type prioritizedElement[T any] struct {
	value    T
	priority uint8
}

// Message is a bounded queue kept ordered by each element's priority
// (highest first, FIFO among equal priorities), rather than by arrival
// order.
type Message[T any] struct {
	scheduler *kernel.Scheduler
	storage   []prioritizedElement[T]
	count     int

	freeSlots      *semaphore.Semaphore
	availableItems *semaphore.Semaphore
}

// NewMessage returns a Message queue with room for capacity elements.
// Unlike Fifo, Message's ring is kept priority-sorted and so
// cannot reuse a plain user-provided []T as its backing array (each
// slot also carries a priority); capacity is taken directly rather than
// inferring it from a caller-provided slice length.
func NewMessage[T any](scheduler *kernel.Scheduler, capacity int) *Message[T] {
	n := capacity
	return &Message[T]{
		scheduler:      scheduler,
		storage:        make([]prioritizedElement[T], n),
		freeSlots:      semaphore.New(scheduler, n, n),
		availableItems: semaphore.New(scheduler, 0, n),
	}
}

// insert places v at the position its priority dictates, shifting only
// strictly lower-priority entries right, so v lands after every entry of
// equal priority and arrival order is preserved within a band.
func (q *Message[T]) insert(v T, priority uint8) {
	q.scheduler.Lock()
	i := q.count
	for i > 0 && q.storage[i-1].priority < priority {
		q.storage[i] = q.storage[i-1]
		i--
	}
	q.storage[i] = prioritizedElement[T]{value: v, priority: priority}
	q.count++
	q.scheduler.Unlock()
}

// extract removes and returns the highest-priority element.
func (q *Message[T]) extract() (T, uint8) {
	q.scheduler.Lock()
	head := q.storage[0]
	copy(q.storage[:q.count-1], q.storage[1:q.count])
	q.count--
	q.scheduler.Unlock()
	return head.value, head.priority
}

// Push blocks until a slot is free, then inserts v at priority.
func (q *Message[T]) Push(v T, priority uint8) error {
	if err := q.freeSlots.Wait(); err != nil {
		return err
	}
	q.insert(v, priority)
	return q.availableItems.Post()
}

// Pop blocks until an element is available, then removes the
// highest-priority one.
func (q *Message[T]) Pop() (T, uint8, error) {
	var zero T
	if err := q.availableItems.Wait(); err != nil {
		return zero, 0, err
	}
	v, p := q.extract()
	if err := q.freeSlots.Post(); err != nil {
		return zero, 0, err
	}
	return v, p, nil
}

// TryPush is the non-blocking form: EAGAIN if the queue is full. Legal
// from interrupt context.
func (q *Message[T]) TryPush(v T, priority uint8) error {
	if err := q.freeSlots.TryWait(); err != nil {
		return err
	}
	q.insert(v, priority)
	return q.availableItems.PostFromInterrupt()
}

// TryPop is the non-blocking form: EAGAIN if the queue is empty. Legal
// from interrupt context.
func (q *Message[T]) TryPop() (T, uint8, error) {
	var zero T
	if err := q.availableItems.TryWait(); err != nil {
		return zero, 0, err
	}
	v, p := q.extract()
	if err := q.freeSlots.PostFromInterrupt(); err != nil {
		return zero, 0, err
	}
	return v, p, nil
}

// TryPushUntil blocks with a deadline; ETIMEDOUT if it elapses before a
// slot frees up.
func (q *Message[T]) TryPushUntil(deadline uint64, v T, priority uint8) error {
	if err := q.freeSlots.TryWaitUntil(deadline); err != nil {
		return err
	}
	q.insert(v, priority)
	return q.availableItems.Post()
}

// TryPopUntil blocks with a deadline; ETIMEDOUT if it elapses before an
// element arrives.
func (q *Message[T]) TryPopUntil(deadline uint64) (T, uint8, error) {
	var zero T
	if err := q.availableItems.TryWaitUntil(deadline); err != nil {
		return zero, 0, err
	}
	v, p := q.extract()
	if err := q.freeSlots.Post(); err != nil {
		return zero, 0, err
	}
	return v, p, nil
}

// Len reports the number of elements currently queued.
func (q *Message[T]) Len() int {
	q.scheduler.Lock()
	defer q.scheduler.Unlock()
	return q.count
}

// Raw is a bounded queue of fixed-size opaque byte records, for callers
// that want to avoid instantiating Fifo/Message per element type (or
// are marshaling a type the caller controls the byte layout of
// directly).
type Raw struct {
	scheduler   *kernel.Scheduler
	elementSize int
	storage     []byte
	head        int
	count       int

	freeSlots      *semaphore.Semaphore
	availableItems *semaphore.Semaphore
}

// NewRaw returns a Raw queue with the given per-element size and
// capacity elementCount; storage is elementSize*elementCount bytes.
func NewRaw(scheduler *kernel.Scheduler, elementSize, elementCount int) *Raw {
	return &Raw{
		scheduler:      scheduler,
		elementSize:    elementSize,
		storage:        make([]byte, elementSize*elementCount),
		freeSlots:      semaphore.New(scheduler, elementCount, elementCount),
		availableItems: semaphore.New(scheduler, 0, elementCount),
	}
}

func (q *Raw) capacity() int { return len(q.storage) / q.elementSize }

func (q *Raw) enqueue(data []byte) {
	q.scheduler.Lock()
	slot := (q.head + q.count) % q.capacity() * q.elementSize
	copy(q.storage[slot:slot+q.elementSize], data)
	q.count++
	q.scheduler.Unlock()
}

func (q *Raw) dequeue(out []byte) {
	q.scheduler.Lock()
	slot := q.head * q.elementSize
	copy(out, q.storage[slot:slot+q.elementSize])
	q.head = (q.head + 1) % q.capacity()
	q.count--
	q.scheduler.Unlock()
}

// Push blocks until a slot is free, then copies data in. size mismatch
// against the configured element size fails immediately with EMSGSIZE,
// without touching either semaphore.
func (q *Raw) Push(data []byte) error {
	if len(data) != q.elementSize {
		return kernel.ErrMsgSize
	}
	if err := q.freeSlots.Wait(); err != nil {
		return err
	}
	q.enqueue(data)
	return q.availableItems.Post()
}

// Pop blocks until an element is available, then copies it into buf.
func (q *Raw) Pop(buf []byte) error {
	if len(buf) != q.elementSize {
		return kernel.ErrMsgSize
	}
	if err := q.availableItems.Wait(); err != nil {
		return err
	}
	q.dequeue(buf)
	return q.freeSlots.Post()
}

// TryPush is the non-blocking form: EAGAIN if full, EMSGSIZE on a size
// mismatch (checked first, before touching either semaphore). Legal
// from interrupt context.
func (q *Raw) TryPush(data []byte) error {
	if len(data) != q.elementSize {
		return kernel.ErrMsgSize
	}
	if err := q.freeSlots.TryWait(); err != nil {
		return err
	}
	q.enqueue(data)
	return q.availableItems.PostFromInterrupt()
}

// TryPop is the non-blocking form: EAGAIN if empty, EMSGSIZE on a size
// mismatch. Legal from interrupt context.
func (q *Raw) TryPop(buf []byte) error {
	if len(buf) != q.elementSize {
		return kernel.ErrMsgSize
	}
	if err := q.availableItems.TryWait(); err != nil {
		return err
	}
	q.dequeue(buf)
	return q.freeSlots.PostFromInterrupt()
}

// TryPushUntil blocks with a deadline; ETIMEDOUT if it elapses first.
func (q *Raw) TryPushUntil(deadline uint64, data []byte) error {
	if len(data) != q.elementSize {
		return kernel.ErrMsgSize
	}
	if err := q.freeSlots.TryWaitUntil(deadline); err != nil {
		return err
	}
	q.enqueue(data)
	return q.availableItems.Post()
}

// TryPopUntil blocks with a deadline; ETIMEDOUT if it elapses first.
func (q *Raw) TryPopUntil(deadline uint64, buf []byte) error {
	if len(buf) != q.elementSize {
		return kernel.ErrMsgSize
	}
	if err := q.availableItems.TryWaitUntil(deadline); err != nil {
		return err
	}
	q.dequeue(buf)
	return q.freeSlots.Post()
}

// Len reports the number of elements currently queued.
func (q *Raw) Len() int {
	q.scheduler.Lock()
	defer q.scheduler.Unlock()
	return q.count
}
