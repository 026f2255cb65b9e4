package workflow

import (
	"context"
	"fmt"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/telemetry"
)

// End is the sentinel "next node" name that terminates Run.
const End = ""

// NodeFunc executes one graph node against the current state and returns
// the updated state. It must not retain state beyond the call.
type NodeFunc func(ctx context.Context, state AgentState) (AgentState, error)

// RouteFunc picks the next node name given the post-node state. Returning
// End terminates the run.
type RouteFunc func(state AgentState) string

// Graph is a directed graph of named nodes, each followed by either a
// fixed next node or a RouteFunc decided at runtime, matching the
// reference implementation's node/conditional-edge table (spec.md §4.6).
type Graph struct {
	entry    string
	nodes    map[string]NodeFunc
	routes   map[string]RouteFunc
	fixed    map[string]string
	svc      *telemetry.Service
	checkpoint Checkpointer
}

// NewGraph creates an empty graph. svc wraps every node in a telemetry
// span (SPEC_FULL.md §4.6 "Cross-process context": the orchestrator
// restores the serialized telemetry context before each node so child
// spans from tools and DAL calls link to the workflow span). checkpoint
// may be nil to disable state persistence (e.g. in unit tests).
func NewGraph(svc *telemetry.Service, checkpoint Checkpointer) *Graph {
	return &Graph{
		nodes:  make(map[string]NodeFunc),
		routes: make(map[string]RouteFunc),
		fixed:  make(map[string]string),
		svc:    svc,
		checkpoint: checkpoint,
	}
}

// AddNode registers a node under name.
func (g *Graph) AddNode(name string, fn NodeFunc) {
	g.nodes[name] = fn
}

// SetEntryPoint designates the first node Run executes.
func (g *Graph) SetEntryPoint(name string) {
	g.entry = name
}

// AddEdge adds an unconditional edge from->to. Use End as to for a
// terminal node whose node function itself decides nothing further.
func (g *Graph) AddEdge(from, to string) {
	g.fixed[from] = to
}

// AddConditionalEdges registers route as the decision function run after
// from completes.
func (g *Graph) AddConditionalEdges(from string, route RouteFunc) {
	g.routes[from] = route
}

// Run executes the graph from its entry point until a node routes to End,
// checkpointing state after every node transition.
func (g *Graph) Run(ctx context.Context, initial AgentState) (AgentState, error) {
	if g.entry == "" {
		return initial, fmt.Errorf("workflow: no entry point set")
	}
	state := initial
	current := g.entry

	for current != End {
		fn, ok := g.nodes[current]
		if !ok {
			return state, fmt.Errorf("workflow: unknown node %q", current)
		}

		nodeCtx := g.restoreTelemetryContext(ctx, state)
		nodeCtx, span := g.svc.StartSpan(nodeCtx, current, telemetry.SpanKindChain, nil, map[string]any{
			"thread_id": state.ThreadID,
		})
		next, err := fn(nodeCtx, state)
		span.End(g.svc)
		if err != nil {
			return state, fmt.Errorf("workflow: node %q failed: %w", current, err)
		}
		state = next
		state.TelemetryContext = g.svc.CaptureContext(nodeCtx)

		if g.checkpoint != nil {
			if err := g.checkpoint.Save(ctx, state.ThreadID, state); err != nil {
				// Checkpoint failures are observable but non-fatal: the run
				// continues in memory even if persistence degrades, matching
				// the reference implementation's fail-open update path for
				// everything except the initial create_interaction call.
				state.PersistenceFailed = true
				state.PersistenceError = err.Error()
			}
		}

		if route, ok := g.routes[current]; ok {
			current = route(state)
			continue
		}
		nextNode, ok := g.fixed[current]
		if !ok {
			return state, fmt.Errorf("workflow: node %q has no outgoing edge", current)
		}
		current = nextNode
	}
	return state, nil
}

func (g *Graph) restoreTelemetryContext(ctx context.Context, state AgentState) context.Context {
	if state.TelemetryContext.TraceParent == "" {
		return ctx
	}
	return g.svc.UseContext(ctx, state.TelemetryContext)
}
