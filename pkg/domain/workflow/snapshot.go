package workflow

import (
	"fmt"

	"github.com/flowdeckio/api/pkg/domain/shared"
)

// Block represents one node of the workflow graph. Sub-blocks hold the
// individual configurable fields of the block (tool parameters, prompts,
// response format hints) keyed by sub-block id.
type Block struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Name      string         `json:"name"`
	PositionX float64        `json:"positionX"`
	PositionY float64        `json:"positionY"`
	Enabled   bool           `json:"enabled"`
	SubBlocks map[string]any `json:"subBlocks,omitempty"`
	Outputs   map[string]any `json:"outputs,omitempty"`
}

// Edge connects a source block to a target block, optionally labelled
// with source/target handles for conditional branches.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Loop describes an iteration subflow over the contained block ids.
type Loop struct {
	ID         string   `json:"id"`
	Nodes      []string `json:"nodes"`
	Iterations int      `json:"iterations"`
	LoopType   string   `json:"loopType,omitempty"`
	ForEach    any      `json:"forEachItems,omitempty"`
}

// Parallel describes a fan-out subflow over the contained block ids.
type Parallel struct {
	ID           string   `json:"id"`
	Nodes        []string `json:"nodes"`
	Count        int      `json:"count"`
	Distribution any      `json:"distribution,omitempty"`
}

// GraphSnapshot is a point-in-time serializable state of a workflow graph.
// The editor mutates the live snapshot; deployment freezes an immutable
// copy that execution prefers over the live state.
type GraphSnapshot struct {
	Blocks    map[string]*Block    `json:"blocks"`
	Edges     []*Edge              `json:"edges"`
	Loops     map[string]*Loop     `json:"loops,omitempty"`
	Parallels map[string]*Parallel `json:"parallels,omitempty"`
}

// NewGraphSnapshot creates an empty snapshot.
func NewGraphSnapshot() *GraphSnapshot {
	return &GraphSnapshot{
		Blocks:    make(map[string]*Block),
		Edges:     []*Edge{},
		Loops:     make(map[string]*Loop),
		Parallels: make(map[string]*Parallel),
	}
}

// Validate checks the referential integrity of the graph. Every edge
// endpoint and every loop/parallel member must reference an existing
// block; dangling references are rejected before execution.
func (s *GraphSnapshot) Validate() error {
	for _, edge := range s.Edges {
		if _, ok := s.Blocks[edge.Source]; !ok {
			return shared.NewDomainError("VALIDATION",
				fmt.Sprintf("edge %s references unknown source block %s", edge.ID, edge.Source),
				shared.ErrValidation)
		}
		if _, ok := s.Blocks[edge.Target]; !ok {
			return shared.NewDomainError("VALIDATION",
				fmt.Sprintf("edge %s references unknown target block %s", edge.ID, edge.Target),
				shared.ErrValidation)
		}
	}

	for id, loop := range s.Loops {
		for _, node := range loop.Nodes {
			if _, ok := s.Blocks[node]; !ok {
				return shared.NewDomainError("VALIDATION",
					fmt.Sprintf("loop %s references unknown block %s", id, node),
					shared.ErrValidation)
			}
		}
	}

	for id, parallel := range s.Parallels {
		for _, node := range parallel.Nodes {
			if _, ok := s.Blocks[node]; !ok {
				return shared.NewDomainError("VALIDATION",
					fmt.Sprintf("parallel %s references unknown block %s", id, node),
					shared.ErrValidation)
			}
		}
	}

	return nil
}

// Clone returns a deep copy of the snapshot. Deployment freezes the live
// state through this so later edits cannot reach the deployed copy.
func (s *GraphSnapshot) Clone() *GraphSnapshot {
	clone := NewGraphSnapshot()

	for id, b := range s.Blocks {
		nb := *b
		nb.SubBlocks = cloneMap(b.SubBlocks)
		nb.Outputs = cloneMap(b.Outputs)
		clone.Blocks[id] = &nb
	}

	clone.Edges = make([]*Edge, len(s.Edges))
	for i, e := range s.Edges {
		ne := *e
		clone.Edges[i] = &ne
	}

	for id, l := range s.Loops {
		nl := *l
		nl.Nodes = append([]string(nil), l.Nodes...)
		clone.Loops[id] = &nl
	}

	for id, p := range s.Parallels {
		np := *p
		np.Nodes = append([]string(nil), p.Nodes...)
		clone.Parallels[id] = &np
	}

	return clone
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
