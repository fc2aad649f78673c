package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeckio/api/pkg/domain/workflow"
)

func testSnapshot() *workflow.GraphSnapshot {
	return &workflow.GraphSnapshot{
		Blocks: map[string]*workflow.Block{
			"start": {ID: "start", Type: "starter", Name: "Start", Enabled: true},
			"agent": {
				ID:      "agent",
				Type:    "agent",
				Name:    "Agent",
				Enabled: true,
				SubBlocks: map[string]any{
					"prompt": "hello",
				},
			},
		},
		Edges: []*workflow.Edge{
			{ID: "e1", Source: "start", Target: "agent"},
		},
	}
}

func TestSerializer_Serialize(t *testing.T) {
	payload, err := NewSerializer().Serialize(testSnapshot())
	require.NoError(t, err)

	var graph wireGraph
	require.NoError(t, json.Unmarshal(payload, &graph))

	assert.Equal(t, wireVersion, graph.Version)
	require.Len(t, graph.Blocks, 2)
	require.Len(t, graph.Connections, 1)
	assert.Equal(t, "start", graph.Connections[0].Source)
	assert.Equal(t, "agent", graph.Connections[0].Target)

	// Blocks come out sorted by id.
	assert.Equal(t, "agent", graph.Blocks[0].ID)
	assert.Equal(t, "start", graph.Blocks[1].ID)
	assert.Equal(t, "hello", graph.Blocks[0].Config["prompt"])
}

func TestSerializer_Serialize_Deterministic(t *testing.T) {
	s := NewSerializer()
	snapshot := testSnapshot()

	first, err := s.Serialize(snapshot)
	require.NoError(t, err)
	second, err := s.Serialize(snapshot)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestSerializer_Serialize_RejectsDanglingEdge(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.Edges = append(snapshot.Edges, &workflow.Edge{ID: "e2", Source: "start", Target: "missing"})

	_, err := NewSerializer().Serialize(snapshot)
	assert.Error(t, err)
}

func TestSerializer_Serialize_NilSnapshot(t *testing.T) {
	_, err := NewSerializer().Serialize(nil)
	assert.Error(t, err)
}
