// Package validation implements the four-layer workflow validator:
// structure, security, capability, resource. All four layers always run;
// a fatal finding in an early layer never hides later findings. The
// validator is pure: same graph, capabilities, and tool set produce the
// same report.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aether-ai/conductor/common/capability"
	"github.com/aether-ai/conductor/common/condition"
	"github.com/aether-ai/conductor/common/graph"
	"github.com/aether-ai/conductor/common/registry"
	"github.com/aether-ai/conductor/common/tools"
)

// LayerResult holds the findings of one validation layer
type LayerResult struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (l *LayerResult) errorf(format string, args ...any) {
	l.Errors = append(l.Errors, fmt.Sprintf(format, args...))
}

func (l *LayerResult) warnf(format string, args ...any) {
	l.Warnings = append(l.Warnings, fmt.Sprintf(format, args...))
}

// Report is the full validation outcome, one result per layer
type Report struct {
	Structure  LayerResult `json:"structure"`
	Security   LayerResult `json:"security"`
	Capability LayerResult `json:"capability"`
	Resource   LayerResult `json:"resource"`
}

// Valid reports whether no layer produced errors
func (r *Report) Valid() bool {
	return len(r.Structure.Errors) == 0 &&
		len(r.Security.Errors) == 0 &&
		len(r.Capability.Errors) == 0 &&
		len(r.Resource.Errors) == 0
}

// AllErrors returns every error across layers, prefixed with the layer name
func (r *Report) AllErrors() []string {
	var out []string
	for _, layer := range []struct {
		name   string
		result LayerResult
	}{
		{"structure", r.Structure},
		{"security", r.Security},
		{"capability", r.Capability},
		{"resource", r.Resource},
	} {
		for _, msg := range layer.result.Errors {
			out = append(out, layer.name+": "+msg)
		}
	}
	return out
}

// Limits are the resource-layer ceilings
type Limits struct {
	MaxNodes          int
	EdgeFactor        int
	MaxLoopIterations int
	TokenBudget       int
}

// DefaultLimits returns the engine defaults
func DefaultLimits() Limits {
	return Limits{
		MaxNodes:          500,
		EdgeFactor:        4,
		MaxLoopIterations: 1000,
		TokenBudget:       100000,
	}
}

// Validator runs the four layers over a workflow graph
type Validator struct {
	limits Limits
}

// New creates a validator; zero-valued limit fields get the defaults
func New(limits Limits) *Validator {
	defaults := DefaultLimits()
	if limits.MaxNodes <= 0 {
		limits.MaxNodes = defaults.MaxNodes
	}
	if limits.EdgeFactor <= 0 {
		limits.EdgeFactor = defaults.EdgeFactor
	}
	if limits.MaxLoopIterations <= 0 {
		limits.MaxLoopIterations = defaults.MaxLoopIterations
	}
	if limits.TokenBudget <= 0 {
		limits.TokenBudget = defaults.TokenBudget
	}
	return &Validator{limits: limits}
}

// Validate runs all four layers. The tool registry scopes layer-2 tool
// name checks to the caller; a nil registry downgrades those checks to a
// warning.
func (v *Validator) Validate(wf *graph.Workflow, caps capability.Set, toolset tools.Registry) *Report {
	report := &Report{}
	v.checkStructure(wf, &report.Structure)
	v.checkSecurity(wf, caps, toolset, &report.Security)
	v.checkCapability(wf, caps, &report.Capability)
	v.checkResource(wf, &report.Resource)
	return report
}

// dangerousPatterns are rejected anywhere in a string config value.
// Matching is case-insensitive for the markup patterns.
var dangerousPatterns = []string{"<script", "javascript:", "`", "\x00"}

const (
	maxStringValueLen = 200
	maxConfigKeyLen   = 50
	maxArrayItems     = 10
)

func (v *Validator) checkStructure(wf *graph.Workflow, result *LayerResult) {
	nodesByID := make(map[string]*graph.Node, len(wf.Nodes))
	var startIDs, endIDs []string

	for i := range wf.Nodes {
		node := &wf.Nodes[i]
		if node.ID == "" {
			result.errorf("node at index %d has an empty id", i)
			continue
		}
		if _, dup := nodesByID[node.ID]; dup {
			result.errorf("duplicate node id %q", node.ID)
			continue
		}
		nodesByID[node.ID] = node

		if !node.Kind.Valid() {
			result.errorf("node %q has unknown kind %q", node.ID, node.Kind)
			continue
		}
		switch node.Kind {
		case graph.KindStart:
			startIDs = append(startIDs, node.ID)
		case graph.KindEnd:
			endIDs = append(endIDs, node.ID)
		}

		v.checkRequiredConfig(node, result)
	}

	switch len(startIDs) {
	case 0:
		result.errorf("workflow has no start node")
	case 1:
	default:
		result.errorf("workflow has %d start nodes, expected exactly one", len(startIDs))
	}
	if len(endIDs) == 0 {
		result.errorf("workflow has no end node")
	}

	adjacency := make(map[string][]graph.Edge, len(wf.Nodes))
	outDegree := make(map[string]int, len(wf.Nodes))
	for _, edge := range wf.Edges {
		if isUppercaseEndMarker(edge.Target) {
			result.errorf("edge %q targets %q; terminal edges must target the lowercase id \"end\"", edge.ID, edge.Target)
			continue
		}
		source, sourceOK := nodesByID[edge.Source]
		if !sourceOK {
			result.errorf("edge %q references unknown source node %q", edge.ID, edge.Source)
		}
		if _, ok := nodesByID[edge.Target]; !ok {
			result.errorf("edge %q references unknown target node %q", edge.ID, edge.Target)
		}
		if !sourceOK {
			continue
		}

		if edge.Source == edge.Target && source.Kind != graph.KindLoop {
			result.errorf("node %q has a self-loop; only loop nodes may loop onto themselves", edge.Source)
		}
		if edge.Kind == graph.EdgeConditional {
			switch edge.Condition {
			case "":
				result.errorf("conditional edge %q carries no condition", edge.ID)
			case "true", "false":
				// literal branch markers on conditional-node edges
			default:
				if _, err := condition.Parse(edge.Condition); err != nil {
					result.errorf("edge %q condition does not parse: %v", edge.ID, err)
				}
			}
		}

		adjacency[edge.Source] = append(adjacency[edge.Source], edge)
		outDegree[edge.Source]++
	}

	for _, node := range wf.Nodes {
		if node.Kind == graph.KindEnd || node.ID == "" {
			continue
		}
		if outDegree[node.ID] == 0 {
			result.errorf("node %q has no outgoing edge", node.ID)
		}
	}

	if len(startIDs) > 0 {
		reachable := reachableFrom(startIDs[0], adjacency)
		for _, node := range wf.Nodes {
			if node.ID == "" || node.ID == startIDs[0] {
				continue
			}
			if !reachable[node.ID] {
				result.errorf("node %q is unreachable from start", node.ID)
			}
		}
	}
}

func (v *Validator) checkRequiredConfig(node *graph.Node, result *LayerResult) {
	entry := registry.Lookup(node.Kind)
	if entry == nil {
		return
	}

	for _, prop := range entry.Properties {
		value, present := node.Config[prop.Name]
		if !present {
			if prop.Required {
				result.errorf("node %q (%s) is missing required config key %q", node.ID, node.Kind, prop.Name)
			}
			continue
		}
		if !typeMatches(prop.Type, value) {
			result.errorf("node %q config key %q must be of type %s", node.ID, prop.Name, prop.Type)
		}
	}

	// Conditions in node config must parse, same as edge conditions
	if cond := node.ConfigString("condition", ""); cond != "" {
		if _, err := condition.Parse(cond); err != nil {
			result.errorf("node %q condition does not parse: %v", node.ID, err)
		}
	}
}

func (v *Validator) checkSecurity(wf *graph.Workflow, caps capability.Set, toolset tools.Registry, result *LayerResult) {
	for i := range wf.Nodes {
		node := &wf.Nodes[i]

		if node.Kind.IsTool() {
			v.checkToolNames(node, toolset, result)
		}
		checkConfigValues(node.ID, "", node.Config, caps, result)
	}
}

func (v *Validator) checkToolNames(node *graph.Node, toolset tools.Registry, result *LayerResult) {
	names := node.ConfigStrings("available_tools")
	if single := node.ConfigString("tool_name", ""); single != "" {
		names = append(names, single)
	}
	if len(names) == 0 {
		return
	}
	if toolset == nil {
		result.warnf("node %q references tools but no registry is available to verify them", node.ID)
		return
	}
	for _, name := range names {
		if _, err := toolset.Get(name); err != nil {
			result.errorf("node %q references unregistered tool %q", node.ID, name)
		}
	}
}

// checkConfigValues walks a config map recursively, applying the string,
// key, array, and web-search rules at every depth. Keys are visited in
// sorted order so repeated validation yields an identical report.
func checkConfigValues(nodeID, path string, config map[string]any, caps capability.Set, result *LayerResult) {
	keys := make([]string, 0, len(config))
	for key := range config {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := config[key]
		keyPath := key
		if path != "" {
			keyPath = path + "." + key
		}

		if len(key) > maxConfigKeyLen {
			result.errorf("node %q config key %q exceeds %d characters", nodeID, keyPath, maxConfigKeyLen)
		}
		if !validKeyCharset(key) {
			result.errorf("node %q config key %q contains characters outside [a-zA-Z0-9_]", nodeID, keyPath)
		}

		checkConfigValue(nodeID, keyPath, value, caps, result)
	}
}

func checkConfigValue(nodeID, keyPath string, value any, caps capability.Set, result *LayerResult) {
	switch v := value.(type) {
	case string:
		checkStringValue(nodeID, keyPath, v, caps, result)
	case []any:
		if len(v) > maxArrayItems {
			result.errorf("node %q config key %q has %d items, max is %d", nodeID, keyPath, len(v), maxArrayItems)
		}
		for _, item := range v {
			checkConfigValue(nodeID, keyPath, item, caps, result)
		}
	case []string:
		if len(v) > maxArrayItems {
			result.errorf("node %q config key %q has %d items, max is %d", nodeID, keyPath, len(v), maxArrayItems)
		}
		for _, item := range v {
			checkStringValue(nodeID, keyPath, item, caps, result)
		}
	case map[string]any:
		checkConfigValues(nodeID, keyPath, v, caps, result)
	}
}

func checkStringValue(nodeID, keyPath, value string, caps capability.Set, result *LayerResult) {
	if len(value) > maxStringValueLen {
		result.errorf("node %q config value at %q exceeds %d characters", nodeID, keyPath, maxStringValueLen)
	}

	lowered := strings.ToLower(value)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lowered, pattern) {
			result.errorf("node %q config value at %q contains forbidden pattern %q", nodeID, keyPath, printablePattern(pattern))
			break
		}
	}

	if !caps.EnableWebSearch && containsHTTPCommand(lowered) {
		result.errorf("node %q config value at %q issues an HTTP command but enable_web_search is off", nodeID, keyPath)
	}
}

func (v *Validator) checkCapability(wf *graph.Workflow, caps capability.Set, result *LayerResult) {
	for i := range wf.Nodes {
		node := &wf.Nodes[i]

		switch {
		case node.Kind == graph.KindRetrieval && !caps.EnableRetrieval:
			result.errorf("node %q requires enable_retrieval", node.ID)
		case node.Kind.IsTool() && !caps.EnableTools:
			result.errorf("node %q requires enable_tools", node.ID)
		}

		if node.ConfigBool("stream", false) && !caps.EnableStreaming {
			result.errorf("node %q requires enable_streaming", node.ID)
		}

		checkLimitCeiling(node, "max_tool_calls", caps.MaxToolCalls, result)
		checkLimitCeiling(node, "max_documents", caps.MaxDocuments, result)
		checkLimitCeiling(node, "memory_window", caps.MemoryWindow, result)
	}
}

func checkLimitCeiling(node *graph.Node, key string, ceiling int, result *LayerResult) {
	if ceiling <= 0 {
		return
	}
	if requested := node.ConfigInt(key, 0); requested > ceiling {
		result.errorf("node %q requests %s=%d, capability ceiling is %d", node.ID, key, requested, ceiling)
	}
}

func (v *Validator) checkResource(wf *graph.Workflow, result *LayerResult) {
	if len(wf.Nodes) > v.limits.MaxNodes {
		result.errorf("workflow has %d nodes, max is %d", len(wf.Nodes), v.limits.MaxNodes)
	}

	maxEdges := len(wf.Nodes) * v.limits.EdgeFactor
	if len(wf.Edges) > maxEdges {
		result.errorf("workflow has %d edges, max is %d (%d nodes x %d)", len(wf.Edges), maxEdges, len(wf.Nodes), v.limits.EdgeFactor)
	}

	totalMaxTokens := 0
	for i := range wf.Nodes {
		node := &wf.Nodes[i]

		if node.Kind == graph.KindLoop {
			iters := node.ConfigInt("max_iterations", 0)
			if iters <= 0 {
				result.errorf("loop node %q must declare a positive max_iterations", node.ID)
			} else if iters > v.limits.MaxLoopIterations {
				result.errorf("loop node %q max_iterations=%d exceeds the hard cap %d", node.ID, iters, v.limits.MaxLoopIterations)
			}
		}

		if node.Kind.IsModel() {
			totalMaxTokens += node.ConfigInt("max_tokens", 0)
		}
	}

	if totalMaxTokens > v.limits.TokenBudget {
		result.errorf("aggregate max_tokens %d exceeds the per-execution budget %d", totalMaxTokens, v.limits.TokenBudget)
	}
}

func reachableFrom(start string, adjacency map[string][]graph.Edge) map[string]bool {
	seen := map[string]bool{}
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, edge := range adjacency[id] {
			if !seen[edge.Target] {
				stack = append(stack, edge.Target)
			}
		}
	}
	return seen
}

// isUppercaseEndMarker catches END and End style terminal targets, which
// some graph producers emit by mistake. Only the exact lowercase id is
// legal.
func isUppercaseEndMarker(target string) bool {
	return target != "end" && strings.EqualFold(target, "end")
}

func typeMatches(t registry.PropertyType, value any) bool {
	switch t {
	case registry.TypeString, registry.TypeText, registry.TypeSelect:
		_, ok := value.(string)
		return ok
	case registry.TypeNumber:
		switch value.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case registry.TypeBoolean:
		_, ok := value.(bool)
		return ok
	case registry.TypeArray:
		switch value.(type) {
		case []any, []string:
			return true
		}
		return false
	case registry.TypeObject:
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

func validKeyCharset(key string) bool {
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return key != ""
}

func containsHTTPCommand(lowered string) bool {
	return strings.Contains(lowered, "http://") || strings.Contains(lowered, "https://")
}

func printablePattern(pattern string) string {
	if pattern == "\x00" {
		return "\\x00"
	}
	return pattern
}
