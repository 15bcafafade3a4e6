// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/tutorchat/internal/apierr"
	"github.com/jeranaias/tutorchat/internal/model"
)

const (
	// DefaultBaseURL is the hosted retrieval service.
	DefaultBaseURL = "https://rag-api-llm.up.railway.app"

	// DefaultTopK is the number of passages requested per search.
	DefaultTopK = 5

	// DefaultTimeout bounds search and upload requests.
	DefaultTimeout = 60 * time.Second

	// maxResponseSize caps decoded JSON responses.
	// SECURITY: Response size limit prevents memory exhaustion.
	maxResponseSize = 8 * 1024 * 1024
)

// ErrNoFiles is returned by Search when no file ids are given.
var ErrNoFiles = errors.New("no files to search")

// =============================================================================
// TYPES
// =============================================================================

// Document is one retrieved passage.
type Document struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score,omitempty"`
}

type searchRequest struct {
	Query   string   `json:"query"`
	FileIDs []string `json:"file_ids"`
	K       int      `json:"k"`
}

type envelope struct {
	Success   bool       `json:"success"`
	Documents []Document `json:"documents"`
	FileID    string     `json:"file_id"`
	Error     *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client calls /embeddings and /upload_file.
type Client struct {
	baseURL    string
	apiKey     string
	topK       int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client authenticating with apiKey. The key is sent as
// the raw Authorization header value, as the service expects.
func NewClient(apiKey string) *Client {
	return &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     strings.TrimSpace(apiKey),
		topK:       DefaultTopK,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
}

// WithBaseURL sets the service root.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithTopK sets how many passages a search requests.
func (c *Client) WithTopK(k int) *Client {
	if k > 0 {
		c.topK = k
	}
	return c
}

// WithTimeout sets the request timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.httpClient.Timeout = d
	}
	return c
}

// WithHTTPClient replaces the underlying client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithLogger sets the request logger.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// TopK returns the configured passage count.
func (c *Client) TopK() int {
	return c.topK
}

// Search returns up to TopK passages from fileIDs relevant to query.
func (c *Client) Search(ctx context.Context, query string, fileIDs []string) ([]Document, error) {
	const op = "search"
	if len(fileIDs) == 0 {
		return nil, &apierr.RetrievalError{Op: op, Err: ErrNoFiles}
	}

	body, err := json.Marshal(searchRequest{Query: query, FileIDs: fileIDs, K: c.topK})
	if err != nil {
		return nil, &apierr.RetrievalError{Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, &apierr.RetrievalError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	env, err := c.do(req, op)
	if err != nil {
		return nil, err
	}
	return env.Documents, nil
}

// Upload sends a document as multipart field "file" and returns its
// registry entry. The content type is derived from the file extension.
func (c *Client) Upload(ctx context.Context, fileName string, r io.Reader) (model.UploadedFile, error) {
	const op = "upload"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(fileName)))
	hdr.Set("Content-Type", contentType)

	part, err := mw.CreatePart(hdr)
	if err != nil {
		return model.UploadedFile{}, &apierr.RetrievalError{Op: op, Err: err}
	}
	if _, err := io.Copy(part, r); err != nil {
		return model.UploadedFile{}, &apierr.RetrievalError{Op: op, Err: fmt.Errorf("failed to read %s: %w", fileName, err)}
	}
	if err := mw.Close(); err != nil {
		return model.UploadedFile{}, &apierr.RetrievalError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload_file", &buf)
	if err != nil {
		return model.UploadedFile{}, &apierr.RetrievalError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	env, err := c.do(req, op)
	if err != nil {
		return model.UploadedFile{}, err
	}
	if env.FileID == "" {
		return model.UploadedFile{}, &apierr.RetrievalError{Op: op, Err: &apierr.ProtocolError{Op: op, Status: http.StatusOK, Message: "response did not contain a file_id"}}
	}
	return model.UploadedFile{FileID: env.FileID, FileName: filepath.Base(fileName)}, nil
}

// do sends req and decodes the {success, ..., error} envelope.
func (c *Client) do(req *http.Request, op string) (*envelope, error) {
	req.Header.Set("Authorization", c.apiKey)

	c.logger.Debug("retrieval request", "op", op)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apierr.RetrievalError{Op: op, Err: &apierr.NetworkError{Op: op, Err: err}}
	}
	defer resp.Body.Close()
	c.logger.Debug("retrieval response", "op", op, "status", resp.StatusCode, "duration", time.Since(start).Round(time.Millisecond))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &apierr.RetrievalError{Op: op, Err: &apierr.NetworkError{Op: op, Err: err}}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	pe := &apierr.ProtocolError{Op: op, Status: resp.StatusCode}
	if env.Error != nil {
		pe.Message = env.Error.Message
		pe.Code = env.Error.Code
	}

	switch {
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &apierr.RetrievalError{Op: op, Err: pe}
	case decodeErr != nil:
		pe.Err = fmt.Errorf("failed to decode response: %w", decodeErr)
		return nil, &apierr.RetrievalError{Op: op, Err: pe}
	case !env.Success:
		if pe.Message == "" {
			pe.Message = "service reported failure"
		}
		return nil, &apierr.RetrievalError{Op: op, Err: pe}
	}
	return &env, nil
}
