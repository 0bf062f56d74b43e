package ocrservice

import (
	"bytes"
	"context"
	"image"
	// decoders used by imageExtension
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const defaultImageExtension = ".png"

var knownImageExtensions = map[string]string{
	".png":  ".png",
	".jpg":  ".jpg",
	".jpeg": ".jpg",
	".gif":  ".gif",
	".bmp":  ".bmp",
	".tif":  ".tiff",
	".tiff": ".tiff",
	".webp": ".webp",
}

// createTempFileName generates a unique file name in dir. An empty dir means os.TempDir.
// The base name is a ksuid so names sort by creation time and never collide.
func createTempFileName(dir string, extension string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, ksuid.New().String()+extension)
}

// imageExtension picks an extension the engine can infer the format from: the sniffed
// format first, then the declared filename, then png.
func imageExtension(data []byte, filename string) string {
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		if ext, ok := knownImageExtensions["."+format]; ok {
			return ext
		}
	}
	if ext, ok := knownImageExtensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return ext
	}
	return defaultImageExtension
}

// timeTrack used to measure time of selected operations
func timeTrack(logger *zerolog.Logger, start time.Time, operation string, message string) {
	logger.Info().Str("component", "OCR_PIPELINE").Dur(operation, time.Since(start)).Msg(message)
}

// newRequestID returns a K-Sortable id used to correlate the log lines of one request
func newRequestID() string {
	return ksuid.New().String()
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// requestIDFromContext returns the id set by withRequestID, or a fresh one.
func requestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return newRequestID()
}

// StripPasswordFromUrl strips passwords from URL
func StripPasswordFromUrl(urlToLog *url.URL) string {
	pass, passSet := urlToLog.User.Password()
	if passSet {
		return strings.Replace(urlToLog.String(), pass+"@", "***@", 1)
	}
	return urlToLog.String()
}

// stripPasswordFromRawUrl is StripPasswordFromUrl for unparsed URIs such as the amqp uri
func stripPasswordFromRawUrl(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		log.Debug().Err(err).Str("component", "OCR_UTIL").Msg("could not parse url for logging")
		return "<unparsable url>"
	}
	return StripPasswordFromUrl(u)
}
