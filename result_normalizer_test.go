package ocrservice

import (
	"testing"

	"github.com/couchbaselabs/go.assert"
	"github.com/pkg/errors"
)

const box = `[[0,0],[10,0],[10,10],[0,10]]`

func normalize(t *testing.T, raw string) []LineRecord {
	lines, err := NormalizeResult(RawResult(raw))
	if err != nil {
		t.Fatalf("NormalizeResult(%s): %v", raw, err)
	}
	return lines
}

func TestNormalizeMixedPage(t *testing.T) {
	raw := `[[` +
		`[` + box + `,["Hello",0.95]],` +
		`[` + box + `,["World",0.80]],` +
		`[` + box + `,"Total"]` +
		`]]`
	lines := normalize(t, raw)
	assert.Equals(t, len(lines), 3)
	assert.Equals(t, lines[0].Text, "Hello")
	assert.Equals(t, lines[0].Confidence, 0.95)
	assert.Equals(t, lines[1].Text, "World")
	assert.Equals(t, lines[2].Text, "Total")
	assert.Equals(t, lines[2].Confidence, 1.0)

	result := BuildResult(lines)
	assert.Equals(t, result.Text, "Hello\nWorld\nTotal")
	assert.True(t, result.Confidence > 0.9166 && result.Confidence < 0.9167)
}

func TestNormalizeEmptyShapes(t *testing.T) {
	for _, raw := range []string{"", "  ", "null", "[]", "[null]", "[[]]"} {
		lines := normalize(t, raw)
		assert.Equals(t, len(lines), 0)
	}
}

func TestNormalizeFirstPageOnly(t *testing.T) {
	raw := `[` +
		`[[` + box + `,["first",0.5]]],` +
		`[[` + box + `,["second",0.5]]]` +
		`]`
	lines := normalize(t, raw)
	assert.Equals(t, len(lines), 1)
	assert.Equals(t, lines[0].Text, "first")
}

func TestNormalizeFlatLineList(t *testing.T) {
	raw := `[[` + box + `,["a",0.25]],[` + box + `,"b"]]`
	lines := normalize(t, raw)
	assert.Equals(t, len(lines), 2)
	assert.Equals(t, lines[0].Text, "a")
	assert.Equals(t, lines[0].Confidence, 0.25)
	assert.Equals(t, lines[1].Confidence, 1.0)
}

func TestNormalizeSkipsMalformedLines(t *testing.T) {
	raw := `[[` +
		`null,` +
		`[` + box + `],` +
		`[` + box + `,[]],` +
		`[` + box + `,["",0.9]],` +
		`[` + box + `,[42,0.9]],` +
		`[` + box + `,["bad score","high"]],` +
		`[` + box + `,["kept",0.5]]` +
		`]]`
	lines := normalize(t, raw)
	assert.Equals(t, len(lines), 1)
	assert.Equals(t, lines[0].Text, "kept")
}

func TestNormalizeConfidenceVariants(t *testing.T) {
	raw := `[[` +
		`[` + box + `,["string score","0.5"]],` +
		`[` + box + `,["null score",null]],` +
		`[` + box + `,["text only"]],` +
		`[` + box + `,["too high",1.7]],` +
		`[` + box + `,["negative",-0.2]]` +
		`]]`
	lines := normalize(t, raw)
	assert.Equals(t, len(lines), 5)
	assert.Equals(t, lines[0].Confidence, 0.5)
	assert.Equals(t, lines[1].Confidence, 1.0)
	assert.Equals(t, lines[2].Confidence, 1.0)
	assert.Equals(t, lines[3].Confidence, 1.0)
	assert.Equals(t, lines[4].Confidence, 0.0)
}

func TestNormalizeDictPage(t *testing.T) {
	raw := `[{"rec_texts":["Invoice","No. 17",""],"rec_scores":[0.9,0.7,0.1],"input_path":"/tmp/x.png"}]`
	lines := normalize(t, raw)
	assert.Equals(t, len(lines), 2)
	assert.Equals(t, lines[0].Text, "Invoice")
	assert.Equals(t, lines[1].Confidence, 0.7)

	lines = normalize(t, `{"rec_texts":["a","b"],"rec_scores":[0.5]}`)
	assert.Equals(t, len(lines), 2)
	assert.Equals(t, lines[1].Confidence, 1.0)
}

func TestNormalizeMalformedDocuments(t *testing.T) {
	for _, raw := range []string{`"text"`, `42`, `{"foo":1}`, `[1,2]`, `[[`, `["page"]`} {
		_, err := NormalizeResult(RawResult(raw))
		assert.True(t, err != nil)
		var malformed *MalformedResultError
		assert.True(t, errors.As(err, &malformed))
	}
}

func TestNormalizePageKeepsLinesAroundRegionlessEntry(t *testing.T) {
	raw := `[[[` + box + `,["Hello",0.9]],["World",0.8]]]`
	lines := normalize(t, raw)
	assert.Equals(t, len(lines), 1)
	assert.Equals(t, lines[0].Text, "Hello")
	assert.Equals(t, lines[0].Confidence, 0.9)

	raw = `[[["World",0.8],[` + box + `,["Hello",0.9]]]]`
	lines = normalize(t, raw)
	assert.Equals(t, len(lines), 1)
	assert.Equals(t, lines[0].Text, "Hello")
}

func TestNormalizeFlatListWithBrokenFirstEntry(t *testing.T) {
	raw := `[["only-one-field"],[` + box + `,["Hello",0.9]],[` + box + `,["World",0.8]]]`
	lines := normalize(t, raw)
	assert.Equals(t, len(lines), 2)
	assert.Equals(t, lines[0].Text, "Hello")
	assert.Equals(t, lines[1].Text, "World")

	lines = normalize(t, `[null,[`+box+`,["Hello",0.9]]]`)
	assert.Equals(t, len(lines), 1)
	assert.Equals(t, lines[0].Text, "Hello")
}

func TestNormalizeFlatRegionCoordinates(t *testing.T) {
	lines := normalize(t, `[[[0,0,10,0,10,10,0,10],["flat box",0.6]]]`)
	assert.Equals(t, len(lines), 1)
	assert.Equals(t, lines[0].Text, "flat box")
}
