package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeckio/api/pkg/domain/shared"
)

func snapshotWithBlocks(ids ...string) *GraphSnapshot {
	s := NewGraphSnapshot()
	for _, id := range ids {
		s.Blocks[id] = &Block{ID: id, Type: "agent", Name: id, Enabled: true}
	}
	return s
}

func TestGraphSnapshot_Validate(t *testing.T) {
	s := snapshotWithBlocks("a", "b")
	s.Edges = append(s.Edges, &Edge{ID: "e1", Source: "a", Target: "b"})
	s.Loops["l1"] = &Loop{ID: "l1", Nodes: []string{"b"}, Iterations: 3}
	s.Parallels["p1"] = &Parallel{ID: "p1", Nodes: []string{"a"}, Count: 2}

	assert.NoError(t, s.Validate())
}

func TestGraphSnapshot_Validate_DanglingReferences(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*GraphSnapshot)
	}{
		{
			name: "edge source",
			setup: func(s *GraphSnapshot) {
				s.Edges = append(s.Edges, &Edge{ID: "e1", Source: "ghost", Target: "a"})
			},
		},
		{
			name: "edge target",
			setup: func(s *GraphSnapshot) {
				s.Edges = append(s.Edges, &Edge{ID: "e1", Source: "a", Target: "ghost"})
			},
		},
		{
			name: "loop member",
			setup: func(s *GraphSnapshot) {
				s.Loops["l1"] = &Loop{ID: "l1", Nodes: []string{"ghost"}}
			},
		},
		{
			name: "parallel member",
			setup: func(s *GraphSnapshot) {
				s.Parallels["p1"] = &Parallel{ID: "p1", Nodes: []string{"ghost"}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := snapshotWithBlocks("a")
			tt.setup(s)
			err := s.Validate()
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err))
		})
	}
}

func TestGraphSnapshot_Clone_IsDeep(t *testing.T) {
	s := snapshotWithBlocks("a", "b")
	s.Blocks["a"].SubBlocks = map[string]any{"prompt": "original"}
	s.Edges = append(s.Edges, &Edge{ID: "e1", Source: "a", Target: "b"})
	s.Loops["l1"] = &Loop{ID: "l1", Nodes: []string{"b"}, Iterations: 3}

	clone := s.Clone()

	// Mutate the original; the clone must not change.
	s.Blocks["a"].SubBlocks["prompt"] = "edited"
	s.Blocks["a"].Name = "renamed"
	s.Edges[0].Target = "a"
	s.Loops["l1"].Nodes[0] = "a"
	s.Blocks["c"] = &Block{ID: "c"}

	assert.Equal(t, "original", clone.Blocks["a"].SubBlocks["prompt"])
	assert.Equal(t, "a", clone.Blocks["a"].Name)
	assert.Equal(t, "b", clone.Edges[0].Target)
	assert.Equal(t, []string{"b"}, clone.Loops["l1"].Nodes)
	assert.Len(t, clone.Blocks, 2)
}
