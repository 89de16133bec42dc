package kernel

import "testing"

func newTCBT(t *testing.T, priority Priority) *TCB {
	t.Helper()
	tcb := &TCB{}
	if err := NewTCB(tcb, 0, 1024, priority, SchedulingFIFO); err != nil {
		t.Fatalf("New: %v", err)
	}
	return tcb
}

func priorities(l *WaitList) []Priority {
	var out []Priority
	for t := l.head; t != nil; t = t.next {
		out = append(out, t.priority)
	}
	return out
}

func TestInsertByPriorityOrdersDescending(t *testing.T) {
	l := &WaitList{}
	low, mid, high := newTCBT(t, 1), newTCBT(t, 5), newTCBT(t, 9)

	l.insertByPriority(mid)
	l.insertByPriority(low)
	l.insertByPriority(high)

	got := priorities(l)
	want := []Priority{9, 5, 1}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestInsertByPriorityFIFOWithinBand(t *testing.T) {
	l := &WaitList{}
	a, b, c := newTCBT(t, 5), newTCBT(t, 5), newTCBT(t, 5)

	l.insertByPriority(a)
	l.insertByPriority(b)
	l.insertByPriority(c)

	if l.head != a || l.head.next != b || l.tail != c {
		t.Fatalf("expected FIFO order a,b,c within the band")
	}
	if l.len != 3 {
		t.Fatalf("len = %d, want 3", l.len)
	}
}

func TestRemoveIsConstantTimeAndClearsBackref(t *testing.T) {
	l := &WaitList{}
	a, b, c := newTCBT(t, 5), newTCBT(t, 3), newTCBT(t, 1)
	l.insertByPriority(a)
	l.insertByPriority(b)
	l.insertByPriority(c)

	l.remove(b)

	if b.list != nil || b.prev != nil || b.next != nil {
		t.Fatalf("remove did not clear b's links")
	}
	if l.len != 2 || l.head != a || l.tail != c || a.next != c || c.prev != a {
		t.Fatalf("list not relinked correctly after remove")
	}
}

func TestRotateFrontMovesHeadToOwnBandTail(t *testing.T) {
	l := &WaitList{}
	a, b, c := newTCBT(t, 5), newTCBT(t, 5), newTCBT(t, 1)
	l.insertByPriority(a)
	l.insertByPriority(b)
	l.insertByPriority(c)

	l.rotateFront()

	got := priorities(l)
	if l.head != b {
		t.Fatalf("head = %v, want b", got)
	}
	if l.tail != c {
		t.Fatalf("rotated a should stay ahead of the lower band, tail = %v", got)
	}
	if a.prev != b || a.next != c {
		t.Fatalf("a not reinserted between b and c: %v", got)
	}
}

func TestRotateFrontNoopWhenAloneInBand(t *testing.T) {
	l := &WaitList{}
	a, b := newTCBT(t, 9), newTCBT(t, 1)
	l.insertByPriority(a)
	l.insertByPriority(b)

	l.rotateFront()

	if l.head != a {
		t.Fatalf("sole member of the top band should remain head after rotate")
	}
}

func TestInsertByPriorityPanicsOnDoubleInsert(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double insertion")
		}
	}()
	l1, l2 := &WaitList{}, &WaitList{}
	a := newTCBT(t, 5)
	l1.insertByPriority(a)
	l2.insertByPriority(a)
}
