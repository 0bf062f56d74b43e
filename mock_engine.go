package ocrservice

import "context"

// MOCK_ENGINE_RESPONSE is a PaddleOCR-shaped page with one scored and one bare line.
const MOCK_ENGINE_RESPONSE = `[[` +
	`[[[0,0],[120,0],[120,20],[0,20]],["mock engine decoder response",0.99]],` +
	`[[[0,24],[120,24],[120,44],[0,44]],"mock engine"]` +
	`]]`

type MockEngine struct {
}

// RecognizeBuffer returns MOCK_ENGINE_RESPONSE for any image.
func (m MockEngine) RecognizeBuffer(ctx context.Context, data []byte) (RawResult, error) {
	return RawResult(MOCK_ENGINE_RESPONSE), nil
}

func (m MockEngine) Concurrent() bool {
	return true
}
