package solver

// openItem is one cell in the open set.
type openItem struct {
	cell         int
	g            int
	h            int
	f            int
	indexInQueue int
}

// openQueue is a binary heap over openItem ordered by f, then h, then cell
// index, so equal-cost searches always expand cells in the same order.
type openQueue []*openItem

func (q openQueue) Len() int { return len(q) }

func (q openQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.f != b.f {
		return a.f < b.f
	}
	if a.h != b.h {
		return a.h < b.h
	}
	return a.cell < b.cell
}

func (q openQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].indexInQueue = i
	q[j].indexInQueue = j
}

func (q *openQueue) Push(x any) {
	item := x.(*openItem)
	item.indexInQueue = len(*q)
	*q = append(*q, item)
}

func (q *openQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.indexInQueue = -1
	*q = old[:n-1]
	return item
}
