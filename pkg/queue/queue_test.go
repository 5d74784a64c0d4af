package queue

import "testing"

func drain(q *Queue[string]) []string {
	var out []string
	for {
		v, ok := q.Pop()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPopOrder(t *testing.T) {
	cases := []struct {
		name string
		push []struct {
			v   string
			pri int
		}
		want []string
	}{
		{
			name: "higher priority first",
			push: []struct {
				v   string
				pri int
			}{{"low", 0}, {"high", 10}, {"mid", 5}},
			want: []string{"high", "mid", "low"},
		},
		{
			name: "fifo among equal priorities",
			push: []struct {
				v   string
				pri int
			}{{"a", 1}, {"b", 1}, {"c", 1}},
			want: []string{"a", "b", "c"},
		},
		{
			name: "mixed",
			push: []struct {
				v   string
				pri int
			}{{"a", 0}, {"b", 2}, {"c", 0}, {"d", 2}},
			want: []string{"b", "d", "a", "c"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := New[string]()
			for _, p := range tc.push {
				q.Push(p.v, p.pri)
			}
			got := drain(q)
			if !equal(got, tc.want) {
				t.Fatalf("pop order = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPeekDoesNotRemove(t *testing.T) {
	q := New[string]()
	q.Push("only", 3)
	v, ok := q.Peek()
	if !ok || v != "only" {
		t.Fatalf("peek = %q, %v", v, ok)
	}
	if q.Len() != 1 {
		t.Fatalf("peek removed the element")
	}
}

func TestRemove(t *testing.T) {
	q := New[string]()
	q.Push("a", 1)
	q.Push("b", 5)
	q.Push("c", 1)

	if !q.Remove("b") {
		t.Fatalf("Remove(b) = false")
	}
	if q.Remove("b") {
		t.Fatalf("second Remove(b) = true")
	}
	got := drain(q)
	if !equal(got, []string{"a", "c"}) {
		t.Fatalf("after remove: %v", got)
	}
}

func TestRemoveIf(t *testing.T) {
	q := New[string]()
	q.Push("keep1", 1)
	q.Push("dropA", 9)
	q.Push("keep2", 5)
	q.Push("dropB", 0)

	removed := q.RemoveIf(func(v string) bool { return v == "dropA" || v == "dropB" })
	if len(removed) != 2 {
		t.Fatalf("removed %v, want 2 elements", removed)
	}
	got := drain(q)
	if !equal(got, []string{"keep2", "keep1"}) {
		t.Fatalf("after RemoveIf: %v", got)
	}
}

func TestSnapshotNonDestructive(t *testing.T) {
	q := New[string]()
	q.Push("a", 0)
	q.Push("b", 7)
	q.Push("c", 7)

	snap := q.Snapshot()
	want := []string{"b", "c", "a"}
	if len(snap) != len(want) {
		t.Fatalf("snapshot length %d, want %d", len(snap), len(want))
	}
	for i, it := range snap {
		if it.Value != want[i] {
			t.Fatalf("snapshot[%d] = %q, want %q", i, it.Value, want[i])
		}
	}
	if q.Len() != 3 {
		t.Fatalf("snapshot drained the queue")
	}
	if got := drain(q); !equal(got, want) {
		t.Fatalf("pop after snapshot: %v", got)
	}
}

func TestPurge(t *testing.T) {
	q := New[string]()
	q.Push("a", 1)
	seqBefore := q.Push("b", 1)
	q.Purge()
	if q.Len() != 0 {
		t.Fatalf("len after purge = %d", q.Len())
	}
	if seqAfter := q.Push("c", 1); seqAfter <= seqBefore {
		t.Fatalf("sequence restarted after purge: %d <= %d", seqAfter, seqBefore)
	}
}

func TestFreshSequenceOnReinsert(t *testing.T) {
	q := New[string]()
	q.Push("first", 1)
	q.Push("second", 1)

	v, _ := q.Pop()
	if v != "first" {
		t.Fatalf("pop = %q, want first", v)
	}
	// Re-inserting at the same priority goes behind the remaining
	// equal-priority element.
	q.Push("first", 1)
	if got := drain(q); !equal(got, []string{"second", "first"}) {
		t.Fatalf("after reinsert: %v", got)
	}
}
