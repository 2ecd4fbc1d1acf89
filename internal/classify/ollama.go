package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"mediacat/internal/mediaerr"
)

const defaultPrompt = `List the main subjects, objects and scene types visible in this image.
Reply with ONLY JSON of the form {"labels": [{"label": "beach", "confidence": 0.92}]}.
Use short lowercase nouns and at most 8 labels.`

type ollamaRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Format string   `json:"format"`
	Stream bool     `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// OllamaClassifier asks a local Ollama vision model to label images
type OllamaClassifier struct {
	endpoint string
	model    string
	prompt   string
	client   *http.Client
}

// OllamaOption configures an OllamaClassifier
type OllamaOption func(*OllamaClassifier)

// WithHTTPClient replaces the default client
func WithHTTPClient(c *http.Client) OllamaOption {
	return func(o *OllamaClassifier) {
		o.client = c
	}
}

// WithPrompt replaces the labelling prompt
func WithPrompt(p string) OllamaOption {
	return func(o *OllamaClassifier) {
		o.prompt = p
	}
}

// NewOllamaClassifier creates a classifier talking to endpoint, e.g.
// http://localhost:11434
func NewOllamaClassifier(endpoint, model string, opts ...OllamaOption) *OllamaClassifier {
	o := &OllamaClassifier{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		prompt:   defaultPrompt,
		client:   &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Classify sends the image at path to the model and parses its labels
func (o *OllamaClassifier) Classify(ctx context.Context, path string) ([]Label, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mediaerr.FromIO(path, err)
	}

	body, err := json.Marshal(ollamaRequest{
		Model:  o.model,
		Prompt: o.prompt,
		Images: []string{base64.StdEncoding.EncodeToString(data)},
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}

	labels, err := parseLabels(out.Response)
	if err != nil {
		return nil, fmt.Errorf("parse labels from %q: %w", out.Response, err)
	}
	return labels, nil
}

// Available checks that the service answers
func (o *OllamaClassifier) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
