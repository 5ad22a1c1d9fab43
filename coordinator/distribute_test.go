package coordinator

import "testing"

func ids(n int) []uint {
	out := make([]uint, n)
	for i := range out {
		out[i] = uint(i + 1)
	}
	return out
}

func TestDistributeTests(t *testing.T) {
	t.Run("even split", func(t *testing.T) {
		out := DistributeTests(ids(6), []string{"a", "b", "c"})
		for i, a := range out {
			if len(a.TestIDs) != 2 {
				t.Fatalf("node %d got %d tests", i, len(a.TestIDs))
			}
		}
		if out[0].TestIDs[0] != 1 || out[1].TestIDs[0] != 3 || out[2].TestIDs[0] != 5 {
			t.Fatalf("splits not contiguous: %v", out)
		}
	})

	t.Run("remainder goes to earlier nodes", func(t *testing.T) {
		out := DistributeTests(ids(7), []string{"a", "b", "c"})
		want := []int{3, 2, 2}
		total := 0
		for i, a := range out {
			if len(a.TestIDs) != want[i] {
				t.Fatalf("node %d got %d tests, want %d", i, len(a.TestIDs), want[i])
			}
			total += len(a.TestIDs)
		}
		if total != 7 {
			t.Fatalf("distributed %d tests", total)
		}
	})

	t.Run("every test assigned exactly once", func(t *testing.T) {
		out := DistributeTests(ids(10), []string{"a", "b", "c", "d"})
		seen := map[uint]bool{}
		for _, a := range out {
			for _, id := range a.TestIDs {
				if seen[id] {
					t.Fatalf("test %d assigned twice", id)
				}
				seen[id] = true
			}
		}
		if len(seen) != 10 {
			t.Fatalf("assigned %d tests", len(seen))
		}
	})

	t.Run("more nodes than tests", func(t *testing.T) {
		out := DistributeTests(ids(2), []string{"a", "b", "c"})
		if len(out[0].TestIDs) != 1 || len(out[1].TestIDs) != 1 || len(out[2].TestIDs) != 0 {
			t.Fatalf("got %v", out)
		}
	})

	t.Run("no nodes", func(t *testing.T) {
		out := DistributeTests(ids(3), nil)
		if len(out) != 0 {
			t.Fatalf("got %v", out)
		}
	})
}
