package research

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkspace_StartsInPlanning(t *testing.T) {
	ws := NewWorkspace("how do caches interact?")

	assert.NotEmpty(t, ws.ID)
	assert.Equal(t, StatusPlanning, ws.Status)
	assert.False(t, ws.Terminal())
}

func TestWorkspace_Advance_ForwardChain(t *testing.T) {
	ws := NewWorkspace("q")

	for _, next := range []Status{
		StatusGathering, StatusSummarizing, StatusConnecting, StatusSynthesizing, StatusCompleted,
	} {
		require.NoError(t, ws.advance(next))
		assert.Equal(t, next, ws.Status)
	}
	assert.True(t, ws.Terminal())
}

func TestWorkspace_Advance_RejectsSkippedState(t *testing.T) {
	ws := NewWorkspace("q")

	err := ws.advance(StatusSynthesizing)

	assert.Error(t, err)
	assert.Equal(t, StatusPlanning, ws.Status)
}

func TestWorkspace_Advance_RejectsTerminal(t *testing.T) {
	ws := NewWorkspace("q")
	ws.fail(errors.New("boom"))

	assert.Error(t, ws.advance(StatusGathering))
	assert.Equal(t, StatusFailed, ws.Status)
}

func TestWorkspace_Fail_RecordsErrorOnce(t *testing.T) {
	ws := NewWorkspace("q")
	require.NoError(t, ws.advance(StatusGathering))

	ws.fail(errors.New("store unreachable"))
	assert.Equal(t, StatusFailed, ws.Status)
	assert.Equal(t, "store unreachable", ws.Error)

	// Terminal workspaces ignore further failures.
	ws.fail(errors.New("second error"))
	assert.Equal(t, "store unreachable", ws.Error)
}

func TestWorkspace_ExportImport_Roundtrip(t *testing.T) {
	ws := NewWorkspace("compare storage engines")
	ws.Aspects = []Aspect{{Name: "durability", MustCover: []string{"fsync"}}}
	ws.Summaries = []Summary{{Aspect: "durability", Text: "summary text", Coverage: 0.8}}
	ws.Synthesis = "the synthesis"
	require.NoError(t, ws.advance(StatusGathering))

	data, err := ws.Export()
	require.NoError(t, err)

	restored, err := ImportWorkspace(data)
	require.NoError(t, err)
	assert.Equal(t, ws.ID, restored.ID)
	assert.Equal(t, ws.Query, restored.Query)
	assert.Equal(t, StatusGathering, restored.Status)
	assert.Equal(t, ws.Aspects, restored.Aspects)
	assert.Equal(t, ws.Summaries, restored.Summaries)
	assert.Equal(t, ws.Synthesis, restored.Synthesis)
}

func TestImportWorkspace_RejectsInvalidPayloads(t *testing.T) {
	_, err := ImportWorkspace([]byte("not json"))
	assert.Error(t, err)

	_, err = ImportWorkspace([]byte(`{"query":"missing id"}`))
	assert.Error(t, err)
}
