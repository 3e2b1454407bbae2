package graphmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id, identifier, status string, blockedBy ...string) IssueRecord {
	r := IssueRecord{ID: id, Identifier: identifier, Title: identifier, Status: status}
	r.Relations.BlockedBy = blockedBy
	return r
}

func TestBuild_LinearChain(t *testing.T) {
	records := []IssueRecord{
		rec("a", "MOB-1", "Pending"),
		rec("b", "MOB-2", "Pending", "a"),
		rec("c", "MOB-3", "Pending", "b"),
	}

	g, err := Build("parent", "MOB-0", records)
	require.NoError(t, err)

	assert.Equal(t, Ready, g.Tasks["a"].Status)
	assert.Equal(t, Blocked, g.Tasks["b"].Status)
	assert.Equal(t, Blocked, g.Tasks["c"].Status)

	frontier := ReadyFrontier(g, nil, nil, nil)
	require.Len(t, frontier, 1)
	assert.Equal(t, "MOB-1", frontier[0].Identifier)
}

func TestBuild_RejectsCycle(t *testing.T) {
	records := []IssueRecord{
		rec("a", "MOB-1", "Pending", "b"),
		rec("b", "MOB-2", "Pending", "a"),
	}

	_, err := Build("parent", "MOB-0", records)
	require.Error(t, err)
	var cyclic *CyclicGraph
	require.ErrorAs(t, err, &cyclic)
	assert.NotEmpty(t, cyclic.FirstCycle)
}

func TestDiamond_ParallelismFrontier(t *testing.T) {
	records := []IssueRecord{
		rec("a", "MOB-1", "Pending"),
		rec("b", "MOB-2", "Pending", "a"),
		rec("c", "MOB-3", "Pending", "a"),
		rec("d", "MOB-4", "Pending", "b", "c"),
	}
	g, err := Build("parent", "MOB-0", records)
	require.NoError(t, err)

	// Simulate A done.
	completed := map[string]bool{"a": true}
	RecomputeBlocked(g, completed, nil)

	frontier := ReadyFrontier(g, nil, completed, nil)
	require.Len(t, frontier, 2)
	assert.Equal(t, "MOB-2", frontier[0].Identifier)
	assert.Equal(t, "MOB-3", frontier[1].Identifier)

	// D still blocked until both B and C are done.
	assert.Equal(t, Blocked, g.Tasks["d"].Status)
}

func TestApplyRuntimeOverride_NeverOverridesDone(t *testing.T) {
	task := &SubTask{ID: "a", Status: Done}
	failed := map[string]bool{"a": true}
	assert.Equal(t, Done, ApplyRuntimeOverride(task, nil, nil, failed))
}

func TestFailurePropagatesToBlocked(t *testing.T) {
	records := []IssueRecord{
		rec("a", "MOB-1", "Pending"),
		rec("b", "MOB-2", "Pending", "a"),
		rec("c", "MOB-3", "Pending", "b"),
	}
	g, err := Build("parent", "MOB-0", records)
	require.NoError(t, err)

	failed := map[string]bool{"a": true}
	RecomputeBlocked(g, nil, failed)

	stats := Stats(g, nil, nil, failed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, stats.Blocked)
}
