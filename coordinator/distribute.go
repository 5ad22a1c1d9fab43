package coordinator

// An Assignment is one node's contiguous share of the test matrix.
type Assignment struct {
	Node    string
	TestIDs []uint
}

// DistributeTests splits the test ids across nodes in contiguous runs, node
// order preserved. When the split is uneven the earlier nodes take one extra
// test each. A node can come back with no tests if there are more nodes than
// tests.
func DistributeTests(testIDs []uint, nodes []string) []Assignment {
	out := make([]Assignment, len(nodes))
	if len(nodes) == 0 {
		return out
	}

	per := len(testIDs) / len(nodes)
	extra := len(testIDs) % len(nodes)
	offset := 0
	for i, node := range nodes {
		n := per
		if i < extra {
			n++
		}
		ids := make([]uint, n)
		copy(ids, testIDs[offset:offset+n])
		out[i] = Assignment{Node: node, TestIDs: ids}
		offset += n
	}
	return out
}
