// Package engine integrates the external graph-execution engine: wire
// serialization of graph snapshots and the HTTP client that runs them.
package engine

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/flowdeckio/api/pkg/domain/workflow"
)

// wireBlock is one node in the engine's wire format.
type wireBlock struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Name     string         `json:"name"`
	Config   map[string]any `json:"config,omitempty"`
	Outputs  map[string]any `json:"outputs,omitempty"`
	Enabled  bool           `json:"enabled"`
	Position wirePosition   `json:"position"`
}

type wirePosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// wireConnection is one edge in the engine's wire format.
type wireConnection struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// wireGraph is the payload shape the engine executes.
type wireGraph struct {
	Version     string                        `json:"version"`
	Blocks      []wireBlock                   `json:"blocks"`
	Connections []wireConnection              `json:"connections"`
	Loops       map[string]*workflow.Loop     `json:"loops,omitempty"`
	Parallels   map[string]*workflow.Parallel `json:"parallels,omitempty"`
}

// wireVersion is the engine wire-format version this API emits.
const wireVersion = "1.0"

// Serializer converts graph snapshots into the engine wire format.
type Serializer struct{}

// NewSerializer creates a graph serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Serialize validates the snapshot and renders it for the engine.
// Blocks are emitted in a stable order so identical snapshots produce
// identical payloads.
func (s *Serializer) Serialize(snapshot *workflow.GraphSnapshot) (json.RawMessage, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("nil snapshot")
	}
	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}

	graph := wireGraph{
		Version:     wireVersion,
		Blocks:      make([]wireBlock, 0, len(snapshot.Blocks)),
		Connections: make([]wireConnection, 0, len(snapshot.Edges)),
		Loops:       snapshot.Loops,
		Parallels:   snapshot.Parallels,
	}

	ids := make([]string, 0, len(snapshot.Blocks))
	for id := range snapshot.Blocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		b := snapshot.Blocks[id]
		graph.Blocks = append(graph.Blocks, wireBlock{
			ID:      b.ID,
			Type:    b.Type,
			Name:    b.Name,
			Config:  b.SubBlocks,
			Outputs: b.Outputs,
			Enabled: b.Enabled,
			Position: wirePosition{
				X: b.PositionX,
				Y: b.PositionY,
			},
		})
	}

	for _, e := range snapshot.Edges {
		graph.Connections = append(graph.Connections, wireConnection{
			Source:       e.Source,
			Target:       e.Target,
			SourceHandle: e.SourceHandle,
			TargetHandle: e.TargetHandle,
		})
	}

	payload, err := json.Marshal(graph)
	if err != nil {
		return nil, fmt.Errorf("marshal graph: %w", err)
	}
	return payload, nil
}
