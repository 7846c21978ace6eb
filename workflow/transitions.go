package workflow

import (
	"fmt"
	"slices"
)

// Node names as they appear in Metadata.NodeHistory.
const (
	NodeAnalyze  = "analyze"
	NodeSearch   = "search"
	NodeApproval = "approval"
	NodeGenerate = "generate"
	NodeFormat   = "format"
	NodeSave     = "save"
)

type transition struct {
	node string
	next []Status
}

// transitions maps the status a state is in to the node that runs next and
// the statuses that node may hand off to. StatusError is always allowed.
// StatusIdle has no node: the driver moves it to StatusAnalyzing itself.
var transitions = map[Status]transition{
	StatusAnalyzing:  {NodeAnalyze, []Status{StatusSearching, StatusWaitingApproval, StatusGenerating}},
	StatusSearching:  {NodeSearch, []Status{StatusWaitingApproval, StatusGenerating}},
	StatusGenerating: {NodeGenerate, []Status{StatusFormatting}},
	StatusFormatting: {NodeFormat, []Status{StatusSaving}},
	StatusSaving:     {NodeSave, []Status{StatusCompleted}},
	// waiting_approval without a pending request.
	StatusWaitingApproval: {NodeApproval, []Status{StatusWaitingApproval}},
}

// DefectError reports a node that left the state in a status outside the
// transition table. It is a programming error, never a domain failure.
type DefectError struct {
	SessionID string
	Node      string
	From      Status
	To        Status
}

func (e *DefectError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("workflow defect: session %s has no node for status %q", e.SessionID, e.From)
	}
	return fmt.Sprintf("workflow defect: node %s moved session %s from %q to %q",
		e.Node, e.SessionID, e.From, e.To)
}

// nextNode returns the node that runs for a state in status s.
func nextNode(s Status) (string, bool) {
	t, ok := transitions[s]
	return t.node, ok
}

// checkTransition validates a node's hand-off.
func checkTransition(sessionID string, from, to Status) error {
	t, ok := transitions[from]
	if !ok {
		return &DefectError{SessionID: sessionID, From: from, To: to}
	}
	if to == StatusError || slices.Contains(t.next, to) {
		return nil
	}
	return &DefectError{SessionID: sessionID, Node: t.node, From: from, To: to}
}

// suspended reports whether the driver must stop and wait for a decision.
func suspended(s *WorkflowState) bool {
	return s.Status == StatusWaitingApproval && s.PendingApproval != nil
}
