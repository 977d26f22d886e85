// Copyright 2025 Eric G. Suchanek
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package graph is the stateless HTTP client for LightRAG-style graph
// retrieval servers. Every operation is an independent request with a
// per-call timeout; retries are left to the caller.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/suchanek/personal-agent-sub002/pkg/httpclient"
	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

// QueryMode selects the server-side retrieval strategy.
type QueryMode string

const (
	ModeLocal  QueryMode = "local"
	ModeGlobal QueryMode = "global"
	ModeHybrid QueryMode = "hybrid"
	ModeMix    QueryMode = "mix"
	ModeNaive  QueryMode = "naive"
)

// DocStatus is the lifecycle state reported by the server. The server
// owns the lifecycle; ids are opaque to us.
type DocStatus string

const (
	StatusProcessed  DocStatus = "processed"
	StatusProcessing DocStatus = "processing"
	StatusFailed     DocStatus = "failed"
	StatusPending    DocStatus = "pending"
	StatusUnknown    DocStatus = "unknown"
)

// Document is one ingested document as reported by the server.
type Document struct {
	ID        string    `json:"id"`
	FilePath  string    `json:"file_path"`
	Status    DocStatus `json:"status"`
	CreatedAt string    `json:"created_at"`
}

// DeleteResult is the server's response to a document deletion.
type DeleteResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// QueryOptions tune a /query call.
type QueryOptions struct {
	TopK            int
	ResponseType    string
	OnlyNeedContext bool
	OnlyNeedPrompt  bool
}

const (
	defaultQueryTimeout  = 90 * time.Second
	defaultDeleteTimeout = 60 * time.Second
	defaultListTimeout   = 30 * time.Second
	defaultHealthTimeout = 10 * time.Second
)

// Client talks to one graph retrieval server.
type Client struct {
	baseURL string
	http    *httpclient.Client
}

// NewClient creates a client for baseURL. No retries by default; the
// caller decides.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: httpclient.New(
			httpclient.WithMaxRetries(0),
			httpclient.WithTimeout(2*time.Minute),
		),
	}
}

// BaseURL returns the configured server URL.
func (c *Client) BaseURL() string { return c.baseURL }

// IngestText submits text for ingestion under documentID.
func (c *Client) IngestText(ctx context.Context, text, documentID string) error {
	if strings.TrimSpace(text) == "" {
		return perr.New(perr.KindInvalidInput, "GraphClient", "IngestText", "text cannot be empty")
	}

	body := map[string]any{
		"text":        text,
		"document_id": documentID,
	}
	_, err := c.postJSON(ctx, "/documents/text", body, defaultQueryTimeout, "IngestText")
	return err
}

// IngestFile uploads a file via multipart POST.
func (c *Client) IngestFile(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return perr.Wrap(perr.KindInvalidInput, "GraphClient", "IngestFile", "cannot open file", err)
	}
	defer func() { _ = file.Close() }()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return perr.Wrap(perr.KindFatal, "GraphClient", "IngestFile", "cannot build multipart body", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return perr.Wrap(perr.KindFatal, "GraphClient", "IngestFile", "cannot read file", err)
	}
	if err := writer.Close(); err != nil {
		return perr.Wrap(perr.KindFatal, "GraphClient", "IngestFile", "cannot finalize multipart body", err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/documents/upload", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if resp == nil {
		return perr.Wrap(perr.KindTransient, "GraphClient", "IngestFile", "upload request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return c.checkStatus(resp, "IngestFile")
}

// Query runs a retrieval query under the given mode. The timeout is at
// least 60 seconds; graph queries are slow by nature.
func (c *Client) Query(ctx context.Context, query string, mode QueryMode, opts QueryOptions) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", perr.New(perr.KindInvalidInput, "GraphClient", "Query", "query cannot be empty")
	}
	if mode == "" {
		mode = ModeHybrid
	}
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	if opts.ResponseType == "" {
		opts.ResponseType = "Multiple Paragraphs"
	}

	body := map[string]any{
		"query":         query,
		"mode":          string(mode),
		"top_k":         opts.TopK,
		"response_type": opts.ResponseType,
		"stream":        false,
	}
	if opts.OnlyNeedContext {
		body["only_need_context"] = true
	}
	if opts.OnlyNeedPrompt {
		body["only_need_prompt"] = true
	}

	data, err := c.postJSON(ctx, "/query", body, defaultQueryTimeout, "Query")
	if err != nil {
		return "", err
	}

	var parsed struct {
		Response string `json:"response"`
		Content  string `json:"content"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", perr.Wrap(perr.KindExternal, "GraphClient", "Query", "malformed query response", err)
	}
	if parsed.Error != "" {
		return "", perr.New(perr.KindExternal, "GraphClient", "Query", parsed.Error)
	}
	if parsed.Response != "" {
		return parsed.Response, nil
	}
	return parsed.Content, nil
}

// ListDocuments returns all documents known to the server. Three
// response shapes are tolerated and flattened: a statuses map, a
// documents list, and a bare array.
func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultListTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/documents", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if resp == nil {
		return nil, perr.Wrap(perr.KindTransient, "GraphClient", "ListDocuments", "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := c.checkStatus(resp, "ListDocuments"); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, perr.Wrap(perr.KindTransient, "GraphClient", "ListDocuments", "cannot read response", err)
	}
	return parseDocumentList(data)
}

// DeleteDocuments asks the server to delete the given document ids. A
// deletion_started status counts as success; busy and not_allowed are
// surfaced as non-fatal Transient/External errors alongside the parsed
// result.
func (c *Client) DeleteDocuments(ctx context.Context, ids []string, deleteSource bool) (*DeleteResult, error) {
	if len(ids) == 0 {
		return nil, perr.New(perr.KindInvalidInput, "GraphClient", "DeleteDocuments", "no document ids given")
	}

	body := map[string]any{
		"doc_ids":     ids,
		"delete_file": deleteSource,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultDeleteTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/documents/delete_document", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}

	resp, err := c.http.Do(req)
	if resp == nil {
		return nil, perr.Wrap(perr.KindTransient, "GraphClient", "DeleteDocuments", "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := c.checkStatus(resp, "DeleteDocuments"); err != nil {
		return nil, err
	}

	var result DeleteResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, perr.Wrap(perr.KindExternal, "GraphClient", "DeleteDocuments", "malformed delete response", err)
	}

	switch result.Status {
	case "deletion_started", "success", "":
		return &result, nil
	case "busy":
		return &result, perr.New(perr.KindTransient, "GraphClient", "DeleteDocuments",
			"server busy: "+result.Message)
	case "not_allowed":
		return &result, perr.New(perr.KindExternal, "GraphClient", "DeleteDocuments",
			"deletion not allowed: "+result.Message)
	default:
		return &result, perr.New(perr.KindExternal, "GraphClient", "DeleteDocuments",
			fmt.Sprintf("unexpected status %q: %s", result.Status, result.Message))
	}
}

// ClearCache clears the server-side LLM response cache.
func (c *Client) ClearCache(ctx context.Context) error {
	_, err := c.postJSON(ctx, "/documents/clear_cache", map[string]any{"modes": nil}, defaultListTimeout, "ClearCache")
	return err
}

// TriggerScan asks the server to rescan its inputs directory.
func (c *Client) TriggerScan(ctx context.Context) error {
	_, err := c.postJSON(ctx, "/documents/scan", map[string]any{}, defaultListTimeout, "TriggerScan")
	return err
}

// ListLabels returns the graph's entity labels.
func (c *Client) ListLabels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultListTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/graph/label/list", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if resp == nil {
		return nil, perr.Wrap(perr.KindTransient, "GraphClient", "ListLabels", "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := c.checkStatus(resp, "ListLabels"); err != nil {
		return nil, err
	}

	var labels []string
	if err := json.NewDecoder(resp.Body).Decode(&labels); err != nil {
		return nil, perr.Wrap(perr.KindExternal, "GraphClient", "ListLabels", "malformed label list", err)
	}
	return labels, nil
}

// Health reports whether the server answers its health endpoint.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, defaultHealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if resp == nil || err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (c *Client) postJSON(ctx context.Context, path string, body any, timeout time.Duration, op string) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}

	resp, err := c.http.Do(req)
	if resp == nil {
		return nil, perr.Wrap(perr.KindTransient, "GraphClient", op, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := c.checkStatus(resp, op); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// checkStatus converts a non-2xx response into a taxonomy error with
// status and body.
func (c *Client) checkStatus(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	kind := perr.KindExternal
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		kind = perr.KindTransient
	}
	return perr.New(kind, "GraphClient", op,
		fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
}

// parseDocumentList flattens the three known /documents response
// shapes.
func parseDocumentList(data []byte) ([]Document, error) {
	// Shape 1: {"statuses": {"processed": [...], "pending": [...]}}
	var statuses struct {
		Statuses map[string][]Document `json:"statuses"`
	}
	if err := json.Unmarshal(data, &statuses); err == nil && len(statuses.Statuses) > 0 {
		var docs []Document
		for status, group := range statuses.Statuses {
			for _, doc := range group {
				if doc.Status == "" {
					doc.Status = DocStatus(status)
				}
				docs = append(docs, doc)
			}
		}
		return docs, nil
	}

	// Shape 2: {"documents": [...]}
	var wrapped struct {
		Documents []Document `json:"documents"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Documents != nil {
		return wrapped.Documents, nil
	}

	// Shape 3: bare array.
	var bare []Document
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, nil
	}

	return nil, perr.New(perr.KindExternal, "GraphClient", "ListDocuments",
		"unrecognized document list shape")
}
