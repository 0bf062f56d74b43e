package ocrservice

import "strings"

// AggregateConfidence returns the mean confidence of lines, or exactly 0 when there are none.
func AggregateConfidence(lines []LineRecord) float64 {
	if len(lines) == 0 {
		return 0.0
	}
	var sum float64
	for _, l := range lines {
		sum += l.Confidence
	}
	return sum / float64(len(lines))
}

// BuildResult joins the line texts in engine order and aggregates their confidence.
func BuildResult(lines []LineRecord) ExtractionResult {
	texts := make([]string, 0, len(lines))
	for _, l := range lines {
		texts = append(texts, l.Text)
	}
	return ExtractionResult{
		Text:       strings.Join(texts, "\n"),
		Confidence: AggregateConfidence(lines),
	}
}
