// Package tesseract runs recognition in-process through libtesseract (gosseract). It needs
// cgo and the tesseract headers, so the engine is only compiled with -tags tesseract.
// The output is shaped like a PaddleOCR page so it flows through the same normalizer.
package tesseract
