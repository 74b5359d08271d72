package room

import "testing"

func TestRing_AppendBelowCapacity(t *testing.T) {
	r := newRing[int](4)
	r.append(1)
	r.append(2)

	items := r.items()
	if len(items) != 2 || items[0] != 1 || items[1] != 2 {
		t.Errorf("items = %v, want [1 2]", items)
	}
}

func TestRing_OverwritesOldest(t *testing.T) {
	r := newRing[int](3)
	for i := 1; i <= 7; i++ {
		r.append(i)
	}

	items := r.items()
	if len(items) != 3 {
		t.Fatalf("len = %d, want 3", len(items))
	}
	for i, want := range []int{5, 6, 7} {
		if items[i] != want {
			t.Errorf("items[%d] = %d, want %d", i, items[i], want)
		}
	}
}
