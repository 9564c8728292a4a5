package engine

// distanceField holds breadth-first distances from one source cell to every
// other cell of a grid. Unreachable cells hold -1.
type distanceField struct {
	size int
	dist []int
}

func (f distanceField) at(p Pos) int {
	if p.Row < 0 || p.Row >= f.size || p.Col < 0 || p.Col >= f.size {
		return -1
	}
	return f.dist[p.Row*f.size+p.Col]
}

func bfs(g *Grid, src Pos) distanceField {
	f := distanceField{size: g.Size, dist: make([]int, g.Size*g.Size)}
	for i := range f.dist {
		f.dist[i] = -1
	}
	if g.Blocked(src) {
		return f
	}
	f.dist[g.index(src)] = 0
	queue := []Pos{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		d := f.dist[g.index(cur)]
		for _, dir := range directions {
			n := cur.Add(dir)
			if g.Blocked(n) || f.dist[g.index(n)] >= 0 {
				continue
			}
			f.dist[g.index(n)] = d + 1
			queue = append(queue, n)
		}
	}
	return f
}

// pathCache memoises distance fields by source cell. The obstacle layout is
// fixed for a mission, but a cache lives for a single tick only.
type pathCache struct {
	grid   *Grid
	fields map[Pos]distanceField
	builds int
}

func newPathCache(g *Grid) *pathCache {
	return &pathCache{grid: g, fields: make(map[Pos]distanceField)}
}

func (c *pathCache) from(src Pos) distanceField {
	if f, ok := c.fields[src]; ok {
		return f
	}
	f := bfs(c.grid, src)
	c.fields[src] = f
	c.builds++
	return f
}

// nearest picks the reachable candidate closest in f, breaking ties by the
// lowest row and then the lowest column of the candidate.
func nearest(f distanceField, candidates []Pos) (Pos, bool) {
	var best Pos
	bestDist := -1
	for _, c := range candidates {
		d := f.at(c)
		if d < 0 {
			continue
		}
		if bestDist < 0 || d < bestDist || (d == bestDist && c.Less(best)) {
			best, bestDist = c, d
		}
	}
	return best, bestDist >= 0
}

// nextStep returns the first neighbour of from, in up/down/left/right order,
// that lies on a shortest path to the source of toTarget.
func nextStep(toTarget distanceField, from Pos) (Pos, bool) {
	d := toTarget.at(from)
	if d <= 0 {
		return from, false
	}
	for _, dir := range directions {
		n := from.Add(dir)
		if toTarget.at(n) == d-1 {
			return n, true
		}
	}
	return from, false
}

// components labels every open cell with the id of its connected region.
// Obstacles get -1.
func components(g *Grid) []int {
	label := make([]int, g.Size*g.Size)
	for i := range label {
		label[i] = -1
	}
	next := 0
	for r := 0; r < g.Size; r++ {
		for c := 0; c < g.Size; c++ {
			start := Pos{r, c}
			if g.Blocked(start) || label[g.index(start)] >= 0 {
				continue
			}
			label[g.index(start)] = next
			queue := []Pos{start}
			for len(queue) > 0 {
				cur := queue[0]
				queue = queue[1:]
				for _, dir := range directions {
					n := cur.Add(dir)
					if g.Blocked(n) || label[g.index(n)] >= 0 {
						continue
					}
					label[g.index(n)] = next
					queue = append(queue, n)
				}
			}
			next++
		}
	}
	return label
}
