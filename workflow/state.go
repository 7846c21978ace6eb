package workflow

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/BaSui01/genflow/types"
)

// Status names the phase a workflow runs next.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusAnalyzing       Status = "analyzing"
	StatusSearching       Status = "searching"
	StatusWaitingApproval Status = "waiting_approval"
	StatusGenerating      Status = "generating"
	StatusFormatting      Status = "formatting"
	StatusSaving          Status = "saving"
	StatusCompleted       Status = "completed"
	StatusError           Status = "error"
)

var knownStatuses = []Status{
	StatusIdle, StatusAnalyzing, StatusSearching, StatusWaitingApproval,
	StatusGenerating, StatusFormatting, StatusSaving, StatusCompleted, StatusError,
}

// IsTerminal reports whether no node may run for a state with this status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	return slices.Contains(knownStatuses, s)
}

// Metadata is the append-only audit trail of a run.
type Metadata struct {
	StartTime   time.Time `json:"start_time"`
	NodeHistory []string  `json:"node_history"`
}

// Inputs are caller-supplied run options. They travel with the state so a
// resumed run keeps the options of the run that suspended.
type Inputs struct {
	Model           string            `json:"model,omitempty"`
	Temperature     float32           `json:"temperature,omitempty"`
	MaxTokens       int               `json:"max_tokens,omitempty"`
	MaxResults      int               `json:"max_results,omitempty"`
	RequireApproval bool              `json:"require_approval,omitempty"`
	ApprovalKind    string            `json:"approval_kind,omitempty"`
	Params          map[string]string `json:"params,omitempty"`
}

// WorkflowState is the record passed node to node. Nodes never mutate their
// input; they return a modified clone.
type WorkflowState struct {
	SessionID        string               `json:"session_id"`
	Prompt           string               `json:"prompt"`
	Status           Status               `json:"status"`
	NeedsSearch      *bool                `json:"needs_search,omitempty"`
	SearchResults    []types.SearchResult `json:"search_results"`
	GeneratedContent string               `json:"generated_content,omitempty"`
	Document         *Document            `json:"document,omitempty"`
	Charts           []Chart              `json:"charts"`
	PendingApproval  *ApprovalRequest     `json:"pending_approval,omitempty"`
	Error            string               `json:"error,omitempty"`
	Inputs           Inputs               `json:"inputs"`
	Metadata         Metadata             `json:"metadata"`
}

// NewInitialState returns an idle state for the session. It never fails.
func NewInitialState(sessionID, prompt string) *WorkflowState {
	return newInitialStateAt(sessionID, prompt, time.Now())
}

func newInitialStateAt(sessionID, prompt string, now time.Time) *WorkflowState {
	return &WorkflowState{
		SessionID:     sessionID,
		Prompt:        prompt,
		Status:        StatusIdle,
		SearchResults: []types.SearchResult{},
		Charts:        []Chart{},
		Metadata: Metadata{
			StartTime:   now,
			NodeHistory: []string{},
		},
	}
}

// HasContent reports whether generation has produced content.
func (s *WorkflowState) HasContent() bool {
	return s.GeneratedContent != ""
}

// Clone returns a deep copy.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	c := *s
	if s.NeedsSearch != nil {
		v := *s.NeedsSearch
		c.NeedsSearch = &v
	}
	c.SearchResults = cloneSlice(s.SearchResults)
	c.Charts = make([]Chart, len(s.Charts))
	for i, ch := range s.Charts {
		c.Charts[i] = ch.clone()
	}
	c.Document = s.Document.Clone()
	c.PendingApproval = s.PendingApproval.Clone()
	if s.Inputs.Params != nil {
		c.Inputs.Params = make(map[string]string, len(s.Inputs.Params))
		for k, v := range s.Inputs.Params {
			c.Inputs.Params[k] = v
		}
	}
	c.Metadata.NodeHistory = cloneSlice(s.Metadata.NodeHistory)
	return &c
}

// enter records a node visit. Every node calls it exactly once on entry.
func (s *WorkflowState) enter(node string) {
	s.Metadata.NodeHistory = append(s.Metadata.NodeHistory, node)
}

// fail moves the state to the terminal error status. Content already
// generated is kept.
func (s *WorkflowState) fail(msg string) {
	s.Status = StatusError
	s.Error = msg
	s.PendingApproval = nil
}

// EncodeSnapshot serializes a state for checkpointing.
func EncodeSnapshot(s *WorkflowState) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot restores a checkpointed state.
func DecodeSnapshot(data []byte) (*WorkflowState, error) {
	var s WorkflowState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.SearchResults == nil {
		s.SearchResults = []types.SearchResult{}
	}
	if s.Charts == nil {
		s.Charts = []Chart{}
	}
	if s.Metadata.NodeHistory == nil {
		s.Metadata.NodeHistory = []string{}
	}
	return &s, nil
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
