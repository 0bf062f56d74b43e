package main

import (
	"bytes"
	"context"
	_ "embed"
	"flag"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// check_request sends an image to a running http daemon and validates the exchange
// against the service's OpenAPI document:
//
//	go run ./check_request -url http://localhost:5001 -image receipt.png

//go:embed openapi3_spec.json
var openapiSpec []byte

func init() {
	zerolog.TimeFieldFormat = time.StampMilli
}

func main() {
	var baseURL, imagePath string
	flag.StringVar(&baseURL, "url", "http://localhost:5001", "base url of the http daemon")
	flag.StringVar(&imagePath, "image", "", "image to send to /ocr, only / and /health are checked without it")
	flag.Parse()

	ctx := context.Background()
	router, err := loadRouter(ctx, strings.TrimRight(baseURL, "/"))
	if err != nil {
		log.Fatal().Err(err).Str("component", "CHECK_REQUEST").Msg("could not load openapi document")
	}

	failed := false
	for _, path := range []string{"/", "/health"} {
		req, err := http.NewRequest(http.MethodGet, strings.TrimRight(baseURL, "/")+path, nil)
		if err != nil {
			log.Fatal().Err(err).Str("component", "CHECK_REQUEST").Msg("bad url")
		}
		failed = check(ctx, router, req, nil) != nil || failed
	}

	if imagePath != "" {
		req, body, err := uploadRequest(strings.TrimRight(baseURL, "/")+"/ocr", imagePath)
		if err != nil {
			log.Fatal().Err(err).Str("component", "CHECK_REQUEST").Msg("could not build upload")
		}
		failed = check(ctx, router, req, body) != nil || failed
	}

	if failed {
		os.Exit(1)
	}
}

func loadRouter(ctx context.Context, baseURL string) (routers.Router, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, err
	}
	doc.Servers = openapi3.Servers{{URL: baseURL}}
	if err := doc.Validate(ctx); err != nil {
		return nil, err
	}
	return legacyrouter.NewRouter(doc)
}

func uploadRequest(url, imagePath string) (*http.Request, []byte, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, nil, err
	}
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	part, err := writer.CreateFormFile("file", filepath.Base(imagePath))
	if err != nil {
		return nil, nil, err
	}
	if _, err = part.Write(data); err != nil {
		return nil, nil, err
	}
	if err = writer.Close(); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, buf.Bytes(), nil
}

// check sends req and validates both directions. body is the request body, if any, so it
// can be sent and validated.
func check(ctx context.Context, router routers.Router, req *http.Request, body []byte) error {
	logger := log.With().Str("component", "CHECK_REQUEST").Str("method", req.Method).
		Str("path", req.URL.Path).Logger()

	route, pathParams, err := router.FindRoute(req)
	if err != nil {
		logger.Error().Err(err).Msg("no route in openapi document")
		return err
	}

	requestValidationInput := &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: pathParams,
		Route:      route,
		// the file part is opaque binary, only the route and headers are checked
		Options: &openapi3filter.Options{ExcludeRequestBody: true},
	}
	if err := openapi3filter.ValidateRequest(ctx, requestValidationInput); err != nil {
		logger.Error().Err(err).Msg("request does not match openapi document")
		return err
	}

	if body != nil {
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		logger.Error().Err(err).Msg("request failed")
		return err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	responseValidationInput := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: requestValidationInput,
		Status:                 resp.StatusCode,
		Header:                 resp.Header,
	}
	responseValidationInput.SetBodyBytes(respBody)
	if err := openapi3filter.ValidateResponse(ctx, responseValidationInput); err != nil {
		logger.Error().Err(err).Int("status", resp.StatusCode).Msg("response does not match openapi document")
		return err
	}

	logger.Info().Int("status", resp.StatusCode).Bytes("response", respBody).Msg("response is valid")
	return nil
}
