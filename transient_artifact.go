package ocrservice

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ArtifactManager writes uploaded images to short-lived temp files for engines that only
// accept a filesystem path.
type ArtifactManager struct {
	dir    string
	remove func(name string) error
}

// NewArtifactManager creates a manager writing into dir; an empty dir means os.TempDir.
func NewArtifactManager(dir string) *ArtifactManager {
	return &ArtifactManager{
		dir:    dir,
		remove: os.Remove,
	}
}

// TransientArtifact is a temp file holding exactly the bytes of one upload.
type TransientArtifact struct {
	Path string

	logger  *zerolog.Logger
	remove  func(name string) error
	release sync.Once
}

// Acquire creates a uniquely named file with an image extension containing img.Data.
func (m *ArtifactManager) Acquire(ctx context.Context, img UploadedImage) (*TransientArtifact, error) {
	logger := zerolog.Ctx(ctx)
	name := createTempFileName(m.dir, imageExtension(img.Data, img.Filename))

	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "create temp artifact")
	}

	artifact := &TransientArtifact{Path: name, logger: logger, remove: m.remove}

	_, writeErr := f.Write(img.Data)
	closeErr := f.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		artifact.Release()
		return nil, errors.Wrap(writeErr, "write temp artifact")
	}

	logger.Debug().Str("component", "OCR_ARTIFACT").Str("file_name", name).
		Int("size", img.Size()).Msg("temp artifact created")
	return artifact, nil
}

// Release removes the file. It is safe to call more than once; removal is attempted only
// on the first call and a failure is logged, never returned.
func (a *TransientArtifact) Release() {
	a.release.Do(func() {
		if err := a.remove(a.Path); err != nil {
			a.logger.Warn().Err(err).Caller().Str("component", "OCR_ARTIFACT").
				Str("file_name", a.Path).Msg("temp artifact could not be removed")
			return
		}
		a.logger.Debug().Str("component", "OCR_ARTIFACT").Str("file_name", a.Path).
			Msg("temp artifact removed")
	})
}

// WithArtifact materializes img, calls fn with its path and releases the artifact on every
// exit path of fn, panics included.
func (m *ArtifactManager) WithArtifact(ctx context.Context, img UploadedImage, fn func(path string) error) error {
	artifact, err := m.Acquire(ctx, img)
	if err != nil {
		return err
	}
	defer artifact.Release()
	return fn(artifact.Path)
}
