package ocrservice

// UploadedImage is the payload of one OCR request. Filename is advisory and only used for
// logging and as a hint for the temp file extension.
type UploadedImage struct {
	Data     []byte
	Filename string
}

func (u UploadedImage) Size() int {
	return len(u.Data)
}

// ValidateUpload rejects empty payloads before any engine work is attempted.
func ValidateUpload(img UploadedImage) error {
	if img.Size() == 0 {
		return &EmptyInputError{}
	}
	return nil
}

// LineRecord is one detected line of text and the engine's confidence for it.
type LineRecord struct {
	Text       string
	Confidence float64
}

// ExtractionResult is returned to the caller of POST /ocr.
type ExtractionResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}
