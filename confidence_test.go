package ocrservice

import (
	"testing"

	"github.com/couchbaselabs/go.assert"
)

func TestAggregateConfidenceEmpty(t *testing.T) {
	assert.Equals(t, AggregateConfidence(nil), 0.0)
	result := BuildResult([]LineRecord{})
	assert.Equals(t, result.Text, "")
	assert.Equals(t, result.Confidence, 0.0)
}

func TestAggregateConfidenceMean(t *testing.T) {
	lines := []LineRecord{{Text: "a", Confidence: 0.5}, {Text: "b", Confidence: 1.0}}
	assert.Equals(t, AggregateConfidence(lines), 0.75)
	assert.Equals(t, BuildResult(lines).Text, "a\nb")
}

func TestBuildResultSingleLine(t *testing.T) {
	result := BuildResult([]LineRecord{{Text: "only", Confidence: 0.3}})
	assert.Equals(t, result.Text, "only")
	assert.Equals(t, result.Confidence, 0.3)
}
