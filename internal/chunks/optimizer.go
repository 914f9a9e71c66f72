package chunks

// Optimize rewrites the chunk list before emission. Postprocessing
// chunks move to the tail first, so fusion sees the adjacencies the
// bucketing creates; the loop then applies fusion, elimination, and
// reordering until none of them fires, re-bucketing after every
// rewrite. Fusion and elimination each shrink the list; reordering
// only decreases the position sum of sheet-creating chunks, so the
// loop terminates. The rewrite is deterministic: the leftmost
// applicable rule fires first.
func Optimize(list []Chunk) []Chunk {
	out := bucketPostprocess(append([]Chunk(nil), list...))
	for {
		if next, ok := fuseOnce(out); ok {
			out = bucketPostprocess(next)
			continue
		}
		if next, ok := eliminateOnce(out); ok {
			out = bucketPostprocess(next)
			continue
		}
		if next, ok := reorderOnce(out); ok {
			out = bucketPostprocess(next)
			continue
		}
		break
	}
	return out
}

// fuseOnce fuses the leftmost adjacent pair whose CombineRight accepts.
func fuseOnce(list []Chunk) ([]Chunk, bool) {
	for i := 0; i+1 < len(list); i++ {
		if fused := list[i].CombineRight(list[i+1]); fused != nil {
			out := make([]Chunk, 0, len(list)-1)
			out = append(out, list[:i]...)
			out = append(out, fused)
			out = append(out, list[i+2:]...)
			return out, true
		}
	}
	return list, false
}

// eliminateOnce drops the leftmost chunk with no code and no claim to
// the postprocessing bucket.
func eliminateOnce(list []Chunk) ([]Chunk, bool) {
	for i, c := range list {
		if len(c.Code()) == 0 && !c.Postprocess() {
			out := make([]Chunk, 0, len(list)-1)
			out = append(out, list[:i]...)
			out = append(out, list[i+1:]...)
			return out, true
		}
	}
	return list, false
}

// reorderOnce moves a sheet-creating chunk one slot left when its left
// neighbor neither edits a sheet it reads nor creates sheets itself.
// Swapping past another creation would renumber sheet indexes, so those
// stay put.
func reorderOnce(list []Chunk) ([]Chunk, bool) {
	for i := 1; i < len(list); i++ {
		c := list[i]
		if len(c.CreatedSheetIndexes()) == 0 {
			continue
		}
		left := list[i-1]
		if len(left.CreatedSheetIndexes()) > 0 || left.Postprocess() {
			continue
		}
		if intersects(left.EditedSheetIndexes(), c.SourceSheetIndexes()) {
			continue
		}
		out := append([]Chunk(nil), list...)
		out[i-1], out[i] = out[i], out[i-1]
		return out, true
	}
	return list, false
}

// bucketPostprocess stably partitions the list so formatting chunks sit
// at the end in their original relative order.
func bucketPostprocess(list []Chunk) []Chunk {
	var body, tail []Chunk
	for _, c := range list {
		if c.Postprocess() {
			tail = append(tail, c)
		} else {
			body = append(body, c)
		}
	}
	return append(body, tail...)
}
