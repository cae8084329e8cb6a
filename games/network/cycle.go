package network

import (
	"sort"
	"strconv"
	"strings"
)

// FindMonochromeCycle walks the graph depth-first from start, following only
// nodes that share start's color, and returns the first closed walk of at
// least minLen distinct nodes. Neighbors are visited in edge creation order,
// so the result is deterministic for a given sequence of intents.
func FindMonochromeCycle(g *Graph, start NodeID, minLen int) ([]NodeID, bool) {
	return findCycle(g, start, minLen, nil)
}

// findCycle is FindMonochromeCycle that keeps searching past cycles whose
// signature is already in skip.
func findCycle(g *Graph, start NodeID, minLen int, skip map[string]bool) ([]NodeID, bool) {
	origin, ok := g.Node(start)
	if !ok {
		return nil, false
	}

	w := &cycleWalker{
		g:       g,
		color:   origin.Color,
		minLen:  minLen,
		skip:    skip,
		visited: make(map[NodeID]bool),
		onPath:  make(map[NodeID]int),
	}

	if w.visit(start, start, false) {
		return w.found, true
	}
	return nil, false
}

type cycleWalker struct {
	g      *Graph
	color  Color
	minLen int
	skip   map[string]bool

	visited map[NodeID]bool
	onPath  map[NodeID]int // node -> index in path
	path    []NodeID
	found   []NodeID
}

func (w *cycleWalker) visit(id, parent NodeID, hasParent bool) bool {
	w.visited[id] = true
	w.onPath[id] = len(w.path)
	w.path = append(w.path, id)

	neighbors, _ := w.g.Neighbors(id)
	for _, n := range neighbors {
		if hasParent && n == parent {
			continue
		}

		node, ok := w.g.Node(n)
		if !ok || node.Color != w.color {
			continue
		}

		if idx, ok := w.onPath[n]; ok {
			candidate := w.path[idx:]
			if len(candidate) >= w.minLen && !w.skip[cycleSignature(candidate)] {
				w.found = append([]NodeID(nil), candidate...)
				return true
			}
			continue
		}

		if w.visited[n] {
			continue
		}

		if w.visit(n, id, true) {
			return true
		}
	}

	w.path = w.path[:len(w.path)-1]
	delete(w.onPath, id)

	return false
}

// cycleSignature identifies a cycle by its member set, independent of the
// rotation or direction it was found in.
func cycleSignature(members []NodeID) string {
	ids := make([]int, len(members))
	for i, m := range members {
		ids[i] = int(m)
	}
	sort.Ints(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// centroid averages the positions of the given nodes.
func centroid(g *Graph, members []NodeID) Position {
	var sum Position
	n := 0
	for _, id := range members {
		node, ok := g.Node(id)
		if !ok {
			continue
		}
		sum.X += node.Position.X
		sum.Y += node.Position.Y
		n++
	}
	if n == 0 {
		return sum
	}
	return Position{X: sum.X / float64(n), Y: sum.Y / float64(n)}
}
