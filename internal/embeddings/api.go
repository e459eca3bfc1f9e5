package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ApiEmbedder posts sentences to an HTTP embedding service that answers
// with a JSON array of vectors.
type ApiEmbedder struct {
	url    string
	dim    int
	client *http.Client
}

func NewApi(url string, dim int) *ApiEmbedder {
	return &ApiEmbedder{url: url, dim: dim, client: &http.Client{Timeout: 60 * time.Second}}
}

func (e *ApiEmbedder) ModelName() string { return "api:" + e.url }

func (e *ApiEmbedder) Dimensions() int { return e.dim }

func (e *ApiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	embeddings, err := e.embedRequest(ctx, texts)
	if err != nil {
		return nil, err
	}
	return embeddings, nil
}

func (e *ApiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.embedRequest(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

type embedRequest struct {
	Sentences []string `json:"sentences"`
}

func (e *ApiEmbedder) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	request := &embedRequest{
		Sentences: texts,
	}
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	response, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return nil, fmt.Errorf("embed api %s: %s: %s", e.url, response.Status, bytes.TrimSpace(msg))
	}
	var embeddings [][]float32
	if err := json.NewDecoder(response.Body).Decode(&embeddings); err != nil {
		return nil, err
	}
	if err := checkBatch(embeddings, len(texts), e.dim); err != nil {
		return nil, err
	}
	return embeddings, nil
}
