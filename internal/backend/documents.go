package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

// UploadResponse represents the response from POST /documents/upload
type UploadResponse struct {
	Message    string `json:"message,omitempty"`
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename,omitempty"`
	ModuleCode string `json:"module_code,omitempty"`
}

// DocumentStatus is the processing state of an uploaded document.
type DocumentStatus struct {
	DocumentID string `json:"document_id,omitempty"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}

// HealthResponse represents the response from GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// UploadDocument uploads a file for indexing. moduleCode may be empty.
func (c *Client) UploadDocument(ctx context.Context, filename string, content io.Reader, moduleCode string) (*UploadResponse, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if moduleCode != "" {
		if err := w.WriteField("module_code", moduleCode); err != nil {
			return nil, fmt.Errorf("failed to write module code: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	path := "/documents/upload"
	if moduleCode != "" {
		path += "?" + url.Values{"module_code": {moduleCode}}.Encode()
	}

	var resp UploadResponse
	if err := c.do(ctx, "bloom.documents.upload", http.MethodPost, path, &body, w.FormDataContentType(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteDocument removes a document from the backend index.
func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	return c.doJSON(ctx, "bloom.documents.delete", http.MethodDelete, "/documents/"+url.PathEscape(documentID), nil, nil)
}

// DocumentStatus reports whether an uploaded document has been processed.
func (c *Client) DocumentStatus(ctx context.Context, documentID string) (*DocumentStatus, error) {
	var resp DocumentStatus
	if err := c.doJSON(ctx, "bloom.documents.status", http.MethodGet, "/documents/status/"+url.PathEscape(documentID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks that the backend is up.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doJSON(ctx, "bloom.health", http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
