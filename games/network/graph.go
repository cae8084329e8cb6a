/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package network holds the game-state engine for the network game: the node
// graph, the color interaction rules, cycle detection, the resilience clock
// and the session that ties them together for any number of players.
package network

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/emirpasic/gods/sets/linkedhashset"
)

var (
	ErrUnknownNode       = errors.New("unknown node")
	ErrSelfLoop          = errors.New("node cannot connect to itself")
	ErrAlreadyConnected  = errors.New("nodes are already connected")
	ErrDuplicatePosition = errors.New("a node already occupies that position")
)

type NodeID int

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Position) distance(o Position) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// Node is a single vertex on the shared canvas. Color never changes after
// creation.
type Node struct {
	ID       NodeID   `json:"id"`
	Position Position `json:"position"`
	Color    Color    `json:"color"`
	BigNode  bool     `json:"big_node,omitempty"`
}

// Edge is an undirected connection. A is always the smaller id.
type Edge struct {
	A NodeID `json:"a"`
	B NodeID `json:"b"`
}

func newEdge(a, b NodeID) Edge {
	if b < a {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

type GraphOption func(*Graph)

// WithExclusiveRadius rejects new nodes placed within r of an existing node.
// A radius of zero leaves placement unconstrained.
func WithExclusiveRadius(r float64) GraphOption {
	return func(g *Graph) {
		g.exclusiveRadius = r
	}
}

// Graph owns the live nodes and their adjacency. It is not safe for
// concurrent use; Session serializes access to it.
type Graph struct {
	nodes  *linkedhashmap.Map // NodeID -> *Node, in creation order
	adj    map[NodeID]*linkedhashset.Set
	nextID NodeID

	exclusiveRadius float64
}

func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{
		nodes: linkedhashmap.New(),
		adj:   make(map[NodeID]*linkedhashset.Set),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateNode places a new node and returns its freshly allocated id.
func (g *Graph) CreateNode(pos Position, color Color) (NodeID, error) {
	if !color.Valid() {
		return 0, fmt.Errorf("create node: %w", ErrInvalidColor)
	}

	if g.exclusiveRadius > 0 {
		for _, v := range g.nodes.Values() {
			if v.(*Node).Position.distance(pos) < g.exclusiveRadius {
				return 0, ErrDuplicatePosition
			}
		}
	}

	return g.addNode(pos, color, false), nil
}

// addNode skips placement checks; big nodes land wherever their cycle's
// centroid falls.
func (g *Graph) addNode(pos Position, color Color, big bool) NodeID {
	id := g.nextID
	g.nextID++

	g.nodes.Put(id, &Node{
		ID:       id,
		Position: pos,
		Color:    color,
		BigNode:  big,
	})
	g.adj[id] = linkedhashset.New()

	return id
}

// Connect inserts an undirected edge between a and b.
func (g *Graph) Connect(a, b NodeID) error {
	na, ok := g.adj[a]
	if !ok {
		return fmt.Errorf("connect %d: %w", a, ErrUnknownNode)
	}
	nb, ok := g.adj[b]
	if !ok {
		return fmt.Errorf("connect %d: %w", b, ErrUnknownNode)
	}
	if a == b {
		return ErrSelfLoop
	}
	if na.Contains(b) {
		return ErrAlreadyConnected
	}

	na.Add(b)
	nb.Add(a)

	return nil
}

// RemoveNode deletes id together with every incident edge and reports how many
// edges went with it.
func (g *Graph) RemoveNode(id NodeID) (int, error) {
	set, ok := g.adj[id]
	if !ok {
		return 0, fmt.Errorf("remove %d: %w", id, ErrUnknownNode)
	}

	for _, v := range set.Values() {
		g.adj[v.(NodeID)].Remove(id)
	}

	removed := set.Size()
	delete(g.adj, id)
	g.nodes.Remove(id)

	return removed, nil
}

// Neighbors lists the nodes adjacent to id in the order the edges were made.
func (g *Graph) Neighbors(id NodeID) ([]NodeID, error) {
	set, ok := g.adj[id]
	if !ok {
		return nil, fmt.Errorf("neighbors %d: %w", id, ErrUnknownNode)
	}

	values := set.Values()
	out := make([]NodeID, len(values))
	for i, v := range values {
		out[i] = v.(NodeID)
	}
	return out, nil
}

func (g *Graph) Size() int {
	return g.nodes.Size()
}

func (g *Graph) Node(id NodeID) (Node, bool) {
	v, ok := g.nodes.Get(id)
	if !ok {
		return Node{}, false
	}
	return *v.(*Node), true
}

// Nodes returns copies of the live nodes in creation order.
func (g *Graph) Nodes() []Node {
	values := g.nodes.Values()
	out := make([]Node, len(values))
	for i, v := range values {
		out[i] = *v.(*Node)
	}
	return out
}

func (g *Graph) Connected(a, b NodeID) bool {
	set, ok := g.adj[a]
	return ok && set.Contains(b)
}

// Edges lists every edge once, sorted by endpoints.
func (g *Graph) Edges() []Edge {
	out := []Edge{}
	for id, set := range g.adj {
		for _, v := range set.Values() {
			if n := v.(NodeID); id < n {
				out = append(out, Edge{A: id, B: n})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})

	return out
}

func (g *Graph) EdgeCount() int {
	total := 0
	for _, set := range g.adj {
		total += set.Size()
	}
	return total / 2
}

// incident returns the edges touching id, in adjacency order.
func (g *Graph) incident(id NodeID) []Edge {
	set, ok := g.adj[id]
	if !ok {
		return nil
	}

	out := make([]Edge, 0, set.Size())
	for _, v := range set.Values() {
		out = append(out, newEdge(id, v.(NodeID)))
	}
	return out
}
