package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/genflow/types"
)

func TestNewInitialState(t *testing.T) {
	before := time.Now()
	s := NewInitialState("s1", "hello")

	assert.Equal(t, "s1", s.SessionID)
	assert.Equal(t, "hello", s.Prompt)
	assert.Equal(t, StatusIdle, s.Status)
	assert.Nil(t, s.NeedsSearch)
	assert.NotNil(t, s.SearchResults)
	assert.Empty(t, s.SearchResults)
	assert.Empty(t, s.GeneratedContent)
	assert.Empty(t, s.Error)
	assert.NotNil(t, s.Metadata.NodeHistory)
	assert.Empty(t, s.Metadata.NodeHistory)
	assert.False(t, s.Metadata.StartTime.Before(before))
	assert.False(t, s.Metadata.StartTime.After(time.Now()))
}

func TestProperty_InitialStateIsIdle(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sessionID := rapid.String().Draw(t, "session_id")
		prompt := rapid.String().Draw(t, "prompt")

		s := NewInitialState(sessionID, prompt)
		if s.Status != StatusIdle {
			t.Fatalf("status = %s, want idle", s.Status)
		}
		if len(s.Metadata.NodeHistory) != 0 {
			t.Fatalf("history = %v, want empty", s.Metadata.NodeHistory)
		}
		if s.Metadata.StartTime.After(time.Now()) {
			t.Fatalf("start time %v is in the future", s.Metadata.StartTime)
		}
	})
}

func TestStatus(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
		valid    bool
	}{
		{StatusIdle, false, true},
		{StatusSearching, false, true},
		{StatusWaitingApproval, false, true},
		{StatusCompleted, true, true},
		{StatusError, true, true},
		{Status("bogus"), false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.valid, tt.status.Valid())
		})
	}
}

func TestWorkflowState_CloneIsDeep(t *testing.T) {
	needs := true
	s := NewInitialState("s1", "p")
	s.NeedsSearch = &needs
	s.SearchResults = sampleResults(2)
	s.Charts = []Chart{{ID: "chart-1", Kind: ChartKindChart, Data: []byte(`[1,2]`)}}
	s.Document = &Document{Version: 1, Blocks: []Block{List{Items: []string{"a"}}}}
	s.PendingApproval = &ApprovalRequest{ID: "a1", Payload: []byte(`{}`)}
	s.Inputs.Params = map[string]string{"k": "v"}
	s.enter(NodeAnalyze)

	c := s.Clone()
	*c.NeedsSearch = false
	c.SearchResults[0].Title = "changed"
	c.Charts[0].Data[0] = '{'
	c.Document.Blocks[0] = Paragraph{Text: "x"}
	c.PendingApproval.ID = "other"
	c.Inputs.Params["k"] = "changed"
	c.enter(NodeSearch)

	assert.True(t, *s.NeedsSearch)
	assert.Equal(t, "Result 1", s.SearchResults[0].Title)
	assert.Equal(t, byte('['), s.Charts[0].Data[0])
	assert.Equal(t, List{Items: []string{"a"}}, s.Document.Blocks[0])
	assert.Equal(t, "a1", s.PendingApproval.ID)
	assert.Equal(t, "v", s.Inputs.Params["k"])
	assert.Equal(t, []string{NodeAnalyze}, s.Metadata.NodeHistory)
}

func TestFailKeepsContent(t *testing.T) {
	s := NewInitialState("s1", "p")
	s.GeneratedContent = "draft"
	s.PendingApproval = &ApprovalRequest{ID: "a1"}

	s.fail("boom")

	assert.Equal(t, StatusError, s.Status)
	assert.Equal(t, "boom", s.Error)
	assert.Equal(t, "draft", s.GeneratedContent)
	assert.Nil(t, s.PendingApproval)
}

func TestSnapshotRoundTrip(t *testing.T) {
	needs := true
	s := NewInitialState("s1", "What is new?")
	s.NeedsSearch = &needs
	s.Status = StatusWaitingApproval
	s.SearchResults = []types.SearchResult{{Title: "t", URL: "https://x.test", Snippet: "s"}}
	s.PendingApproval = &ApprovalRequest{ID: "a1", SessionID: "s1", Kind: ApprovalKindGenerate, Status: ApprovalPending}
	s.Document, s.Charts = ParseDocument("# Title\n\nbody")
	s.enter(NodeAnalyze)

	data, err := EncodeSnapshot(s)
	require.NoError(t, err)

	got, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, s.SessionID, got.SessionID)
	assert.Equal(t, s.Status, got.Status)
	assert.Equal(t, s.SearchResults, got.SearchResults)
	assert.Equal(t, s.PendingApproval.ID, got.PendingApproval.ID)
	assert.Equal(t, s.Document.Blocks, got.Document.Blocks)
	assert.Equal(t, s.Metadata.NodeHistory, got.Metadata.NodeHistory)
	assert.True(t, s.Metadata.StartTime.Equal(got.Metadata.StartTime))
}

func TestDecodeSnapshot_NormalizesNilSlices(t *testing.T) {
	got, err := DecodeSnapshot([]byte(`{"session_id":"s1","status":"idle"}`))
	require.NoError(t, err)
	assert.NotNil(t, got.SearchResults)
	assert.NotNil(t, got.Charts)
	assert.NotNil(t, got.Metadata.NodeHistory)

	_, err = DecodeSnapshot([]byte(`not json`))
	assert.Error(t, err)
}
