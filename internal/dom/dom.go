// Package dom is a minimal in-memory document: nodes addressed by id that
// carry text, classes, attributes and a hidden flag. Every mutation is
// counted per node and reported to observers, which is what the runtime and
// its tests use to verify that only the intended nodes were touched.
package dom

import (
	"slices"
	"sort"
	"sync"
)

// Mutation describes a single change to a node.
type Mutation struct {
	NodeID string `json:"node"`
	Field  string `json:"field"`
	Value  string `json:"value"`
}

// NodeSnapshot is a copy of a node's state.
type NodeSnapshot struct {
	ID      string            `json:"id"`
	Text    string            `json:"text"`
	Classes []string          `json:"classes,omitempty"`
	Attrs   map[string]string `json:"attrs,omitempty"`
	Hidden  bool              `json:"hidden,omitempty"`
	Writes  int               `json:"writes"`
}

// Document holds the nodes of one context.
type Document struct {
	mu        sync.RWMutex
	nodes     map[string]*Node
	order     []string
	observers []func(Mutation)
}

func NewDocument() *Document {
	return &Document{nodes: make(map[string]*Node)}
}

// Node is one element of a Document.
type Node struct {
	doc     *Document
	id      string
	text    string
	classes map[string]bool
	attrs   map[string]string
	hidden  bool
	writes  int
}

// Create adds a node with id, or returns the existing one.
func (d *Document) Create(id string) *Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.nodes[id]; ok {
		return n
	}
	n := &Node{doc: d, id: id, classes: make(map[string]bool), attrs: make(map[string]string)}
	d.nodes[id] = n
	d.order = append(d.order, id)
	return n
}

// ByID returns the node with id, or nil when the document has none.
func (d *Document) ByID(id string) *Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.nodes[id]
}

// Observe registers fn to be called after every mutation.
func (d *Document) Observe(fn func(Mutation)) {
	d.mu.Lock()
	d.observers = append(d.observers, fn)
	d.mu.Unlock()
}

// Snapshot copies every node in creation order.
func (d *Document) Snapshot() []NodeSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]NodeSnapshot, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.nodes[id].snapshotLocked())
	}
	return out
}

// Writes returns the number of mutations applied to the node with id.
func (d *Document) Writes(id string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if n, ok := d.nodes[id]; ok {
		return n.writes
	}
	return 0
}

func (d *Document) mutate(n *Node, field, value string, apply func()) {
	d.mu.Lock()
	apply()
	n.writes++
	observers := slices.Clone(d.observers)
	d.mu.Unlock()

	m := Mutation{NodeID: n.id, Field: field, Value: value}
	for _, fn := range observers {
		fn(m)
	}
}

func (n *Node) ID() string { return n.id }

// SetText replaces the node's text content.
func (n *Node) SetText(text string) {
	n.doc.mutate(n, "text", text, func() { n.text = text })
}

func (n *Node) Text() string {
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	return n.text
}

// AddClass adds class; adding a present class is not a mutation.
func (n *Node) AddClass(class string) {
	if n.HasClass(class) {
		return
	}
	n.doc.mutate(n, "class+", class, func() { n.classes[class] = true })
}

// RemoveClass removes class; removing an absent class is not a mutation.
func (n *Node) RemoveClass(class string) {
	if !n.HasClass(class) {
		return
	}
	n.doc.mutate(n, "class-", class, func() { delete(n.classes, class) })
}

func (n *Node) HasClass(class string) bool {
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	return n.classes[class]
}

func (n *Node) SetAttr(name, value string) {
	n.doc.mutate(n, "attr:"+name, value, func() { n.attrs[name] = value })
}

func (n *Node) Attr(name string) string {
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	return n.attrs[name]
}

// SetHidden toggles display:none.
func (n *Node) SetHidden(hidden bool) {
	value := "false"
	if hidden {
		value = "true"
	}
	n.doc.mutate(n, "hidden", value, func() { n.hidden = hidden })
}

func (n *Node) Hidden() bool {
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	return n.hidden
}

func (n *Node) snapshotLocked() NodeSnapshot {
	s := NodeSnapshot{ID: n.id, Text: n.text, Hidden: n.hidden, Writes: n.writes}
	for c := range n.classes {
		s.Classes = append(s.Classes, c)
	}
	sort.Strings(s.Classes)
	if len(n.attrs) > 0 {
		s.Attrs = make(map[string]string, len(n.attrs))
		for k, v := range n.attrs {
			s.Attrs[k] = v
		}
	}
	return s
}
