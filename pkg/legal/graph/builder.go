package graph

import (
	"errors"
	"fmt"
	"sort"

	"legal-assistant-be/pkg/legal/state"
)

var ErrInvalidGraph = errors.New("invalid graph")

type NodeID string

// End is the implicit sink every terminal node points at.
const End NodeID = "__end__"

// Router picks one label out of a closed set.
type Router[L ~string] struct {
	Name   string
	Labels []L
	Route  func(st *state.State) L
}

type conditional struct {
	router  string
	labels  []string
	route   func(st *state.State) string
	targets map[string]NodeID
}

type node struct {
	id      NodeID
	stage   Stage
	next    NodeID
	cond    *conditional
	suspend bool
}

// terminal reports whether the turn can end after this node.
func (n *node) terminal() bool {
	if n.cond == nil {
		return n.next == End
	}
	for _, t := range n.cond.targets {
		if t == End {
			return true
		}
	}
	return false
}

// Builder declares a stage graph. Mistakes are collected and reported by
// Compile so that wiring reads top to bottom.
type Builder struct {
	name  string
	nodes map[NodeID]*node
	order []NodeID
	entry NodeID
	errs  []error
}

func NewBuilder(name string) *Builder {
	return &Builder{name: name, nodes: make(map[NodeID]*node)}
}

func (b *Builder) fail(format string, args ...interface{}) *Builder {
	b.errs = append(b.errs, fmt.Errorf(format, args...))
	return b
}

func (b *Builder) AddNode(id NodeID, stage Stage) *Builder {
	if id == "" || id == End {
		return b.fail("node id %q is reserved", id)
	}
	if _, dup := b.nodes[id]; dup {
		return b.fail("node %s declared twice", id)
	}
	if stage == nil {
		return b.fail("node %s has no stage", id)
	}
	b.nodes[id] = &node{id: id, stage: stage}
	b.order = append(b.order, id)
	return b
}

func (b *Builder) edgeSource(from NodeID) *node {
	n, ok := b.nodes[from]
	if !ok {
		b.fail("edge from unknown node %s", from)
		return nil
	}
	if n.next != "" || n.cond != nil {
		b.fail("node %s already has an outgoing edge", from)
		return nil
	}
	return n
}

// AddEdge wires an unconditional transition. Use End as target for
// terminal nodes.
func (b *Builder) AddEdge(from, to NodeID) *Builder {
	if n := b.edgeSource(from); n != nil {
		n.next = to
	}
	return b
}

// AddTerminal ends the turn after id.
func (b *Builder) AddTerminal(id NodeID) *Builder {
	return b.AddEdge(id, End)
}

// AddSuspend marks a terminal node that may leave the session waiting on a
// specific kind of reply.
func (b *Builder) AddSuspend(id NodeID) *Builder {
	if n := b.edgeSource(id); n != nil {
		n.next = End
		n.suspend = true
	}
	return b
}

func (b *Builder) SetEntryPoint(id NodeID) *Builder {
	b.entry = id
	return b
}

// AddConditional wires a router after from. Every label of the router must
// have a target and no target may be keyed by an undeclared label.
func AddConditional[L ~string](b *Builder, from NodeID, r Router[L], targets map[L]NodeID) *Builder {
	n := b.edgeSource(from)
	if n == nil {
		return b
	}
	if r.Route == nil {
		return b.fail("router %s on %s has no route function", r.Name, from)
	}
	if len(r.Labels) < 2 {
		return b.fail("router %s on %s declares fewer than two labels", r.Name, from)
	}

	c := &conditional{router: r.Name, targets: make(map[string]NodeID, len(targets))}
	declared := make(map[L]bool, len(r.Labels))
	for _, l := range r.Labels {
		if declared[l] {
			return b.fail("router %s declares label %s twice", r.Name, l)
		}
		declared[l] = true
		c.labels = append(c.labels, string(l))
		target, ok := targets[l]
		if !ok {
			b.fail("router %s on %s: label %s has no target", r.Name, from, l)
			continue
		}
		c.targets[string(l)] = target
	}
	for l := range targets {
		if !declared[l] {
			b.fail("router %s on %s: target keyed by undeclared label %s", r.Name, from, l)
		}
	}
	route := r.Route
	c.route = func(st *state.State) string { return string(route(st)) }
	n.cond = c
	return b
}

// Compile validates the declaration and freezes it.
func (b *Builder) Compile() (*Graph, error) {
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrInvalidGraph, b.name, err)
	}
	return &Graph{name: b.name, nodes: b.nodes, entry: b.entry, order: b.order}, nil
}

func (b *Builder) MustCompile() *Graph {
	g, err := b.Compile()
	if err != nil {
		panic(err)
	}
	return g
}

func (b *Builder) validate() error {
	if len(b.errs) > 0 {
		return errors.Join(b.errs...)
	}
	if b.entry == "" {
		return errors.New("no entry point")
	}
	if _, ok := b.nodes[b.entry]; !ok {
		return fmt.Errorf("entry point %s is not a node", b.entry)
	}

	var errs []error
	exists := func(id NodeID) bool {
		_, ok := b.nodes[id]
		return ok || id == End
	}
	terminals := 0
	for _, id := range b.order {
		n := b.nodes[id]
		switch {
		case n.cond != nil:
			for _, l := range n.cond.labels {
				if t := n.cond.targets[l]; !exists(t) {
					errs = append(errs, fmt.Errorf("node %s label %s targets unknown node %s", id, l, t))
				}
			}
		case n.next == "":
			errs = append(errs, fmt.Errorf("node %s has no outgoing edge", id))
		case !exists(n.next):
			errs = append(errs, fmt.Errorf("node %s targets unknown node %s", id, n.next))
		}
		if n.terminal() {
			terminals++
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if terminals == 0 {
		return errors.New("no terminal node")
	}

	if err := b.checkAcyclic(); err != nil {
		return err
	}

	seen := map[NodeID]bool{}
	b.walk(b.entry, seen)
	var unreachable []string
	for _, id := range b.order {
		if !seen[id] {
			unreachable = append(unreachable, string(id))
		}
	}
	if len(unreachable) > 0 {
		sort.Strings(unreachable)
		return fmt.Errorf("unreachable nodes: %v", unreachable)
	}
	return nil
}

func (b *Builder) successors(id NodeID) []NodeID {
	n := b.nodes[id]
	if n == nil {
		return nil
	}
	if n.cond != nil {
		out := make([]NodeID, 0, len(n.cond.labels))
		for _, l := range n.cond.labels {
			out = append(out, n.cond.targets[l])
		}
		return out
	}
	return []NodeID{n.next}
}

func (b *Builder) walk(id NodeID, seen map[NodeID]bool) {
	if id == End || seen[id] {
		return
	}
	seen[id] = true
	for _, next := range b.successors(id) {
		b.walk(next, seen)
	}
}

func (b *Builder) checkAcyclic() error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[NodeID]int, len(b.nodes))
	var visit func(id NodeID) error
	visit = func(id NodeID) error {
		if id == End {
			return nil
		}
		switch color[id] {
		case grey:
			return fmt.Errorf("cycle through node %s", id)
		case black:
			return nil
		}
		color[id] = grey
		for _, next := range b.successors(id) {
			if err := visit(next); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}
	for _, id := range b.order {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// Graph is a compiled, immutable stage graph.
type Graph struct {
	name  string
	nodes map[NodeID]*node
	order []NodeID
	entry NodeID
}

func (g *Graph) Name() string    { return g.name }
func (g *Graph) Entry() NodeID   { return g.entry }
func (g *Graph) Nodes() []NodeID { return append([]NodeID(nil), g.order...) }

// StageName reports the stage bound to a node.
func (g *Graph) StageName(id NodeID) string {
	if n, ok := g.nodes[id]; ok {
		return n.stage.Name()
	}
	return ""
}
