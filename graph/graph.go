// Package graph builds the workflow dependency DAG from the AST and
// splits it at conditional/scatter boundaries into independently
// driveable subgraphs (§3.3, §4.3).
package graph

import (
	"github.com/oakflow-dev/oakflow/ast"
)

// NodeID identifies a node within a Graph; stable for the Graph's lifetime.
type NodeID int

// Kind discriminates the node shapes of §3.3.
type Kind int

const (
	KindInput Kind = iota
	KindDecl
	KindOutput
	KindCall
	KindConditionalEntry
	KindConditionalExit
	KindScatterEntry
	KindScatterExit
)

// Node is one member of the DAG.
type Node struct {
	ID   NodeID
	Kind Kind
	AST  ast.Node

	// For ConditionalExit/ScatterExit, Entry names the paired entry node.
	Entry NodeID
}

// Graph is the whole-document DAG: every node at every nesting level,
// its outgoing edges, plus the per-entry body subgraphs produced by
// splitting (§4.3). The name->producer map is local to Build.
type Graph struct {
	Nodes     map[NodeID]*Node
	edgesOut  map[NodeID][]NodeID
	Root      *Subgraph
	// Subgraphs maps a ConditionalEntry/ScatterEntry node to the
	// subgraph of its body, at every nesting depth (§3.3, §4.3).
	Subgraphs map[NodeID]*Subgraph

	nextID NodeID
}

// Subgraph is a disjoint node set with its current indegree, driveable
// independently of its parent (§3.3).
type Subgraph struct {
	Nodes    map[NodeID]bool
	Indegree map[NodeID]int
}

func newSubgraph() *Subgraph {
	return &Subgraph{Nodes: map[NodeID]bool{}, Indegree: map[NodeID]int{}}
}

// Successors returns the IDs of nodes with an edge from id.
func (g *Graph) Successors(id NodeID) []NodeID {
	return g.edgesOut[id]
}

// Build constructs the graph for a workflow body. suppliedInputs names
// the workflow inputs the caller actually supplied: their default
// expressions must not create edges, since they will never be
// evaluated (§4.3).
func Build(body []ast.Node, suppliedInputs map[string]bool) *Graph {
	g := &Graph{
		Nodes:     map[NodeID]*Node{},
		edgesOut:  map[NodeID][]NodeID{},
		Subgraphs: map[NodeID]*Subgraph{},
	}
	g.Root = g.buildBody(body, map[string]NodeID{}, suppliedInputs, nil)
	return g
}

func (g *Graph) alloc(kind Kind, astNode ast.Node) NodeID {
	id := g.nextID
	g.nextID++
	g.Nodes[id] = &Node{ID: id, Kind: kind, AST: astNode}
	return id
}

// buildBody builds the subgraph for one lexical body (the root, or a
// conditional/scatter body), wiring use->def edges only among nodes
// defined within this same body — a reference to a name bound in an
// enclosing body is handed to outer, which wires it to the entry that
// gates this body's execution, so that entry has already waited for it
// (§4.3). outer is nil for the root body.
func (g *Graph) buildBody(body []ast.Node, producers map[string]NodeID, suppliedInputs map[string]bool, outer func(from NodeID)) *Subgraph {
	sg := newSubgraph()

	addEdge := func(from, to NodeID) {
		if !sg.Nodes[from] && outer != nil {
			outer(from)
			return
		}
		g.edgesOut[from] = append(g.edgesOut[from], to)
		sg.Indegree[to]++
	}

	wireUses := func(names []string, to NodeID) {
		for _, n := range names {
			if from, ok := producers[n]; ok {
				addEdge(from, to)
			}
		}
	}

	for _, n := range body {
		switch node := n.(type) {
		case *ast.InputNode:
			id := g.alloc(KindInput, node)
			sg.Nodes[id] = true
			sg.Indegree[id] += 0
			if node.Default != nil && !suppliedInputs[node.Name] {
				wireUses(ast.FreeVars(node.Default), id)
			}
			producers[node.Name] = id

		case *ast.Decl:
			id := g.alloc(KindDecl, node)
			sg.Nodes[id] = true
			sg.Indegree[id] += 0
			wireUses(ast.FreeVars(node.Expr), id)
			producers[node.Name] = id

		case *ast.OutputNode:
			id := g.alloc(KindOutput, node)
			sg.Nodes[id] = true
			sg.Indegree[id] += 0
			wireUses(ast.FreeVars(node.Expr), id)
			producers[node.Name] = id

		case *ast.Call:
			id := g.alloc(KindCall, node)
			sg.Nodes[id] = true
			sg.Indegree[id] += 0
			wireUses(ast.FreeVarsCall(node), id)
			producers[node.Alias] = id

		case *ast.ConditionalEntry:
			entry := g.alloc(KindConditionalEntry, node)
			sg.Nodes[entry] = true
			sg.Indegree[entry] += 0
			wireUses(ast.FreeVars(node.Predicate), entry)

			exit := g.alloc(KindConditionalExit, &ast.ConditionalExit{Entry: node, Span: node.Span})
			g.Nodes[exit].Entry = entry
			sg.Nodes[exit] = true
			addEdge(entry, exit)
			// Reduced to the direct entry->exit edge only (§3.3): the
			// exit's indegree in the parent is exactly 1.

			childProducers := map[string]NodeID{}
			for k, v := range producers {
				childProducers[k] = v
			}
			body := g.buildBody(node.Body, childProducers, suppliedInputs, func(from NodeID) { addEdge(from, entry) })
			g.Subgraphs[entry] = body

			for _, f := range node.BoundNames {
				producers[f.Name] = exit
			}

		case *ast.ScatterEntry:
			entry := g.alloc(KindScatterEntry, node)
			sg.Nodes[entry] = true
			sg.Indegree[entry] += 0
			wireUses(ast.FreeVars(node.Iterable), entry)

			exit := g.alloc(KindScatterExit, &ast.ScatterExit{Entry: node, Span: node.Span})
			g.Nodes[exit].Entry = entry
			sg.Nodes[exit] = true
			addEdge(entry, exit)

			childProducers := map[string]NodeID{}
			for k, v := range producers {
				childProducers[k] = v
			}
			body := g.buildBody(node.Body, childProducers, suppliedInputs, func(from NodeID) { addEdge(from, entry) })
			g.Subgraphs[entry] = body

			for _, f := range node.BoundNames {
				producers[f.Name] = exit
			}
		}
	}

	return sg
}
