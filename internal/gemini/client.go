// Package gemini is a thin HTTP client for the Google Generative Language
// API: text generation, embeddings, and the file service used for native
// video analysis.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Client communicates with the Gemini API over HTTP. Per-call deadlines come
// from the caller's context; the underlying http.Client carries no timeout of
// its own because video uploads can legitimately run for minutes.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client authenticated with the given API key.
func New(apiKey string) *Client {
	return NewWithBaseURL(apiKey, defaultBaseURL)
}

// NewWithBaseURL creates a Client targeting a non-default endpoint. Tests use
// this to point at a local fake.
func NewWithBaseURL(apiKey, baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 0},
	}
}

// Part is one piece of generation input: inline text, inline binary data, or
// a reference to an uploaded file.
type Part struct {
	Text       string    `json:"text,omitempty"`
	InlineData *Blob     `json:"inlineData,omitempty"`
	FileData   *FileData `json:"fileData,omitempty"`
}

// Blob carries small binary payloads (e.g. sampled video frames) inline with
// the request, base64-encoded.
type Blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// FileData references a previously uploaded file by URI.
type FileData struct {
	MimeType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

type content struct {
	Parts []Part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate sends the given parts to the model and returns the first
// candidate's text. When jsonMode is true the model is asked for a JSON
// response body.
func (c *Client) Generate(ctx context.Context, model string, parts []Part, jsonMode bool) (string, error) {
	gr := generateRequest{Contents: []content{{Parts: parts}}}
	if jsonMode {
		gr.GenerationConfig = &generationConfig{ResponseMimeType: "application/json"}
	}

	var result generateResponse
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, model)
	if err := c.postJSON(ctx, url, gr, &result); err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("generate: empty candidate list")
	}

	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

type embedRequest struct {
	Content  content `json:"content"`
	TaskType string  `json:"taskType,omitempty"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// Embed returns the embedding vector for text. taskType distinguishes
// document embeddings from query embeddings (RETRIEVAL_DOCUMENT /
// RETRIEVAL_QUERY).
func (c *Client) Embed(ctx context.Context, model, text, taskType string) ([]float32, error) {
	er := embedRequest{
		Content:  content{Parts: []Part{{Text: text}}},
		TaskType: taskType,
	}

	var result embedResponse
	url := fmt.Sprintf("%s/v1beta/models/%s:embedContent", c.baseURL, model)
	if err := c.postJSON(ctx, url, er, &result); err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	if len(result.Embedding.Values) == 0 {
		return nil, fmt.Errorf("embed: empty embedding")
	}
	return result.Embedding.Values, nil
}

// File is an uploaded file tracked by the Gemini file service.
type File struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	State    string `json:"state"`
}

type fileResponse struct {
	File File `json:"file"`
}

// UploadFile uploads the file at path and returns its service handle. The
// file usually lands in state PROCESSING; callers wait for ACTIVE via
// WaitForFile before referencing it in a generation request.
func (c *Client) UploadFile(ctx context.Context, path, mimeType string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	url := c.baseURL + "/upload/v1beta/files"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, f)
	if err != nil {
		return File{}, fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("X-Goog-Upload-Protocol", "raw")
	req.Header.Set("X-Goog-File-Name", filepath.Base(path))
	req.Header.Set("Content-Type", mimeType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return File{}, fmt.Errorf("uploading file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return File{}, fmt.Errorf("upload: unexpected status %d", resp.StatusCode)
	}

	var result fileResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return File{}, fmt.Errorf("decoding upload response: %w", err)
	}
	return result.File, nil
}

// GetFile fetches the current state of an uploaded file by its resource name.
func (c *Client) GetFile(ctx context.Context, name string) (File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1beta/"+name, nil)
	if err != nil {
		return File{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return File{}, fmt.Errorf("getting file %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return File{}, fmt.Errorf("get file %s: unexpected status %d", name, resp.StatusCode)
	}

	var file File
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return File{}, fmt.Errorf("decoding file: %w", err)
	}
	return file, nil
}

// WaitForFile polls until the file leaves the PROCESSING state or ctx is
// cancelled. Returns an error if the file ends in any state other than ACTIVE.
func (c *Client) WaitForFile(ctx context.Context, name string, poll time.Duration) error {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	for {
		file, err := c.GetFile(ctx, name)
		if err != nil {
			return err
		}
		switch file.State {
		case "ACTIVE":
			return nil
		case "PROCESSING", "":
		default:
			return fmt.Errorf("file %s ended in state %s", name, file.State)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// DeleteFile removes an uploaded file from the service.
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1beta/"+name, nil)
	if err != nil {
		return fmt.Errorf("creating delete request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deleting file %s: %w", name, err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delete file %s: unexpected status %d", name, resp.StatusCode)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
