// Package graph holds the node/edge workflow representation shared by the
// template compiler, validator, and execution engine. Nodes live in a flat
// ordered slice keyed by string ids; adjacency is computed, never stored by
// the caller.
package graph

import "fmt"

// NodeKind is the closed set of node kinds the engine can execute
type NodeKind string

const (
	KindStart        NodeKind = "start"
	KindEnd          NodeKind = "end"
	KindModel        NodeKind = "model"
	KindLLM          NodeKind = "llm"
	KindTool         NodeKind = "tool"
	KindTools        NodeKind = "tools"
	KindRetrieval    NodeKind = "retrieval"
	KindMemory       NodeKind = "memory"
	KindConditional  NodeKind = "conditional"
	KindLoop         NodeKind = "loop"
	KindVariable     NodeKind = "variable"
	KindErrorHandler NodeKind = "error_handler"
	KindDelay        NodeKind = "delay"
)

// IsModel reports whether the kind invokes the model provider
func (k NodeKind) IsModel() bool {
	return k == KindModel || k == KindLLM
}

// IsTool reports whether the kind invokes the tool registry
func (k NodeKind) IsTool() bool {
	return k == KindTool || k == KindTools
}

// Valid reports whether the kind is part of the closed set
func (k NodeKind) Valid() bool {
	switch k {
	case KindStart, KindEnd, KindModel, KindLLM, KindTool, KindTools,
		KindRetrieval, KindMemory, KindConditional, KindLoop,
		KindVariable, KindErrorHandler, KindDelay:
		return true
	}
	return false
}

// EdgeKind distinguishes plain edges from condition-guarded edges
type EdgeKind string

const (
	EdgeDefault     EdgeKind = "default"
	EdgeConditional EdgeKind = "conditional"
)

// Position is advisory editor layout data; the engine ignores it
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one unit of execution in a workflow
type Node struct {
	ID       string         `json:"id"`
	Kind     NodeKind       `json:"kind"`
	Label    string         `json:"label,omitempty"`
	Position Position       `json:"position"`
	Config   map[string]any `json:"config,omitempty"`
}

// Edge connects two nodes, optionally guarded by a condition string
type Edge struct {
	ID        string   `json:"id"`
	Source    string   `json:"source"`
	Target    string   `json:"target"`
	Kind      EdgeKind `json:"kind"`
	Condition string   `json:"condition,omitempty"`
	Label     string   `json:"label,omitempty"`
}

// Workflow is the full node/edge structure. It is immutable after
// validation and discarded after execution.
type Workflow struct {
	Nodes    []Node         `json:"nodes"`
	Edges    []Edge         `json:"edges"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// Computed by Compile
	adjacency  map[string][]Edge
	reverse    map[string][]Edge
	nodesByID  map[string]*Node
	startID    string
	endIDs     []string
	compiled   bool
}

// Compile indexes the workflow: adjacency maps, node lookup, start/end
// discovery. It performs only the checks needed to build the index;
// full structural validation belongs to the validator.
func (w *Workflow) Compile() error {
	w.adjacency = make(map[string][]Edge, len(w.Nodes))
	w.reverse = make(map[string][]Edge, len(w.Nodes))
	w.nodesByID = make(map[string]*Node, len(w.Nodes))
	w.startID = ""
	w.endIDs = nil

	for i := range w.Nodes {
		node := &w.Nodes[i]
		if node.ID == "" {
			return fmt.Errorf("node %d has empty id", i)
		}
		if _, dup := w.nodesByID[node.ID]; dup {
			return fmt.Errorf("duplicate node id: %s", node.ID)
		}
		w.nodesByID[node.ID] = node

		switch node.Kind {
		case KindStart:
			if w.startID != "" {
				return fmt.Errorf("multiple start nodes: %s and %s", w.startID, node.ID)
			}
			w.startID = node.ID
		case KindEnd:
			w.endIDs = append(w.endIDs, node.ID)
		}
	}

	for _, edge := range w.Edges {
		if _, ok := w.nodesByID[edge.Source]; !ok {
			return fmt.Errorf("edge %s references unknown source node: %s", edge.ID, edge.Source)
		}
		if _, ok := w.nodesByID[edge.Target]; !ok {
			return fmt.Errorf("edge %s references unknown target node: %s", edge.ID, edge.Target)
		}
		w.adjacency[edge.Source] = append(w.adjacency[edge.Source], edge)
		w.reverse[edge.Target] = append(w.reverse[edge.Target], edge)
	}

	w.compiled = true
	return nil
}

// Compiled reports whether Compile has run successfully
func (w *Workflow) Compiled() bool {
	return w.compiled
}

// Node returns the node with the given id, or nil
func (w *Workflow) Node(id string) *Node {
	return w.nodesByID[id]
}

// Outgoing returns the edges leaving a node in declaration order
func (w *Workflow) Outgoing(id string) []Edge {
	return w.adjacency[id]
}

// Incoming returns the edges entering a node in declaration order
func (w *Workflow) Incoming(id string) []Edge {
	return w.reverse[id]
}

// StartID returns the id of the start node, or "" if absent
func (w *Workflow) StartID() string {
	return w.startID
}

// EndIDs returns the ids of all end nodes in declaration order
func (w *Workflow) EndIDs() []string {
	return w.endIDs
}

// Reachable returns the set of node ids reachable from the start node
// following edges forward.
func (w *Workflow) Reachable() map[string]bool {
	seen := make(map[string]bool, len(w.Nodes))
	if w.startID == "" {
		return seen
	}

	stack := []string{w.startID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, edge := range w.adjacency[id] {
			if !seen[edge.Target] {
				stack = append(stack, edge.Target)
			}
		}
	}
	return seen
}

// FirstReachableEnd returns the id of the first end node reachable from
// the given node, or "" when none is. The engine jumps here on uncaught
// node errors.
func (w *Workflow) FirstReachableEnd(from string) string {
	seen := make(map[string]bool, len(w.Nodes))
	queue := []string{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true

		if node := w.nodesByID[id]; node != nil && node.Kind == KindEnd {
			return id
		}
		for _, edge := range w.adjacency[id] {
			if !seen[edge.Target] {
				queue = append(queue, edge.Target)
			}
		}
	}

	// Fall back to any declared end node
	if len(w.endIDs) > 0 {
		return w.endIDs[0]
	}
	return ""
}

// ConfigString reads a string config value with a default
func (n *Node) ConfigString(key, def string) string {
	if v, ok := n.Config[key].(string); ok && v != "" {
		return v
	}
	return def
}

// ConfigInt reads a numeric config value with a default. JSON decoding
// produces float64 for all numbers, so both spellings are accepted.
func (n *Node) ConfigInt(key string, def int) int {
	switch v := n.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// ConfigFloat reads a float config value with a default
func (n *Node) ConfigFloat(key string, def float64) float64 {
	switch v := n.Config[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// ConfigBool reads a boolean config value with a default
func (n *Node) ConfigBool(key string, def bool) bool {
	if v, ok := n.Config[key].(bool); ok {
		return v
	}
	return def
}

// ConfigStrings reads a []string config value; both []string and
// []any-of-string decodings are accepted.
func (n *Node) ConfigStrings(key string) []string {
	switch v := n.Config[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
