package ocrservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RawResult is the engine's native output for one image as a JSON document. It is
// untrusted input: see NormalizeResult for the shapes that are understood.
type RawResult []byte

// lineEntry is the tagged union of line shapes emitted by the engines.
type lineEntry interface {
	record() LineRecord
}

// scoredLine is [region, [text, confidence]].
type scoredLine struct {
	text       string
	confidence float64
}

func (l scoredLine) record() LineRecord {
	return LineRecord{Text: l.text, Confidence: clampConfidence(l.confidence)}
}

// bareLine is [region, text] or [region, [text]]; the engine detected the line without a
// score, so it counts as fully confident.
type bareLine struct {
	text string
}

func (l bareLine) record() LineRecord {
	return LineRecord{Text: l.text, Confidence: 1.0}
}

// NormalizeResult converts raw engine output into ordered line records.
//
// Understood shapes:
//
//	null | [] | [null] | [[]]                      no detections
//	[[line, ...], ...]                             page list, first page is used
//	[line, ...]                                    flat line list
//	{"rec_texts": [...], "rec_scores": [...]}      dict page, also as first element of a page list
//
// where line is [region, [text, confidence]] or [region, text]. Malformed lines are
// dropped; only an unrecognizable top-level shape is an error.
func NormalizeResult(raw RawResult) ([]LineRecord, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return []LineRecord{}, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var doc interface{}
	if err := decoder.Decode(&doc); err != nil {
		return nil, &MalformedResultError{Reason: "invalid json: " + err.Error()}
	}

	switch top := doc.(type) {
	case nil:
		return []LineRecord{}, nil
	case map[string]interface{}:
		return normalizeDictPage(top)
	case []interface{}:
		if len(top) == 0 {
			return []LineRecord{}, nil
		}
		if isFlatLineList(top) {
			return normalizeLines(top), nil
		}
		return normalizePage(top[0])
	default:
		return nil, &MalformedResultError{Reason: fmt.Sprintf("unexpected top-level %T", doc)}
	}
}

func normalizePage(page interface{}) ([]LineRecord, error) {
	switch p := page.(type) {
	case nil:
		return []LineRecord{}, nil
	case []interface{}:
		return normalizeLines(p), nil
	case map[string]interface{}:
		return normalizeDictPage(p)
	default:
		return nil, &MalformedResultError{Reason: fmt.Sprintf("unexpected page %T", page)}
	}
}

func normalizeLines(entries []interface{}) []LineRecord {
	records := make([]LineRecord, 0, len(entries))
	for _, entry := range entries {
		line, ok := classifyLine(entry)
		if !ok {
			continue
		}
		records = append(records, line.record())
	}
	return records
}

func normalizeDictPage(page map[string]interface{}) ([]LineRecord, error) {
	texts, ok := page["rec_texts"].([]interface{})
	if !ok {
		return nil, &MalformedResultError{Reason: "page object without rec_texts list"}
	}
	scores, _ := page["rec_scores"].([]interface{})

	records := make([]LineRecord, 0, len(texts))
	for i, t := range texts {
		text, ok := textField(t)
		if !ok {
			continue
		}
		var line lineEntry = bareLine{text: text}
		if i < len(scores) && scores[i] != nil {
			conf, ok := numericField(scores[i])
			if !ok {
				continue
			}
			line = scoredLine{text: text, confidence: conf}
		}
		records = append(records, line.record())
	}
	return records, nil
}

// isFlatLineList reports whether top holds line entries rather than pages. A line starts
// with a region; a page starts with a line, which never is one. Any region-led entry
// decides, so a leading null or malformed entry does not hide the lines after it.
func isFlatLineList(top []interface{}) bool {
	for _, entry := range top {
		if fields, ok := entry.([]interface{}); ok && len(fields) > 0 && isRegion(fields[0]) {
			return true
		}
	}
	return false
}

// isRegion matches a detection box: a non-empty list of coordinate pairs such as
// [[x,y],...] or a flat [x1,y1,x2,y2,...] list.
func isRegion(v interface{}) bool {
	points, ok := v.([]interface{})
	if !ok || len(points) == 0 {
		return false
	}
	for _, p := range points {
		switch c := p.(type) {
		case json.Number:
		case []interface{}:
			if len(c) == 0 {
				return false
			}
			for _, n := range c {
				if _, ok := n.(json.Number); !ok {
					return false
				}
			}
		default:
			return false
		}
	}
	return true
}

// classifyLine maps one loosely typed line entry onto the union. The second return is
// false for entries that lack a region marker and a usable text field.
func classifyLine(entry interface{}) (lineEntry, bool) {
	fields, ok := entry.([]interface{})
	if !ok || len(fields) < 2 || !isRegion(fields[0]) {
		return nil, false
	}

	switch info := fields[1].(type) {
	case []interface{}:
		if len(info) == 0 {
			return nil, false
		}
		text, ok := textField(info[0])
		if !ok {
			return nil, false
		}
		if len(info) == 1 || info[1] == nil {
			return bareLine{text: text}, true
		}
		conf, ok := numericField(info[1])
		if !ok {
			return nil, false
		}
		return scoredLine{text: text, confidence: conf}, true
	default:
		text, ok := textField(info)
		if !ok {
			return nil, false
		}
		return bareLine{text: text}, true
	}
}

func textField(v interface{}) (string, bool) {
	t, ok := v.(string)
	return t, ok && t != ""
}

func numericField(v interface{}) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch n := v.(type) {
	case json.Number:
		f, err = n.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
