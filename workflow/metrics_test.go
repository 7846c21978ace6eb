package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecorders_FanOut(t *testing.T) {
	a, b := &recordingMetrics{}, &recordingMetrics{}
	rs := Recorders{a, b}

	rs.RecordWorkflowNode("analyze", "searching", time.Millisecond)
	rs.RecordWorkflowRun("completed", time.Second)
	rs.RecordSearchFailure("tavily")

	for _, m := range []*recordingMetrics{a, b} {
		assert.Equal(t, []string{"analyze"}, m.nodes)
		assert.Equal(t, []string{"completed"}, m.outcomes)
		assert.Equal(t, 1, m.searchFailures)
	}
	assert.NotPanics(t, func() { Recorders(nil).RecordWorkflowRun("error", 0) })
}
