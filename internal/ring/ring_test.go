package ring

import "testing"

func TestRing_PushOverwritesOldest(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 3; i++ {
		if _, evicted := r.Push(i); evicted {
			t.Fatalf("push %d should not evict", i)
		}
	}
	old, evicted := r.Push(4)
	if !evicted || old != 1 {
		t.Fatalf("expected eviction of 1, got %d (%v)", old, evicted)
	}
	want := []int{2, 3, 4}
	for i, w := range want {
		if got := r.At(i); got != w {
			t.Errorf("At(%d) = %d, want %d", i, got, w)
		}
	}
}

func TestRing_PopFIFO(t *testing.T) {
	r := New[string](2)
	r.Push("a")
	r.Push("b")
	r.Push("c")
	for _, w := range []string{"b", "c"} {
		v, ok := r.Pop()
		if !ok || v != w {
			t.Fatalf("Pop = %q,%v want %q", v, ok, w)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Fatalf("Pop on empty ring should report false")
	}
}

func TestRing_PtrAndReset(t *testing.T) {
	r := New[int](2)
	r.Push(1)
	*r.Ptr(0) += 10
	if r.At(0) != 11 {
		t.Fatalf("Ptr update not visible, got %d", r.At(0))
	}
	r.Reset()
	if r.Len() != 0 || r.Cap() != 2 {
		t.Fatalf("reset: len=%d cap=%d", r.Len(), r.Cap())
	}
}
