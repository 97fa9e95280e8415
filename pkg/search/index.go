// Package search keeps a full-text index of extracted document text in
// OpenSearch. Every indexed record carries its owner id and all queries are
// filtered by it.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// Document is the indexed shape of an uploaded document.
type Document struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Hit is a single search match.
type Hit struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Index wraps an OpenSearch client bound to one index.
type Index struct {
	client *opensearch.Client
	name   string
}

// New connects to the cluster, verifies it answers, and makes sure the
// index exists.
func New(ctx context.Context, cfg Config) (*Index, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses:  cfg.Addresses,
		Username:   cfg.Username,
		Password:   cfg.Password,
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	idx := &Index{client: client, name: cfg.Index}
	if err := idx.Healthcheck(ctx); err != nil {
		return nil, err
	}
	if err := idx.ensureIndex(ctx); err != nil {
		return nil, err
	}

	return idx, nil
}

func (i *Index) Healthcheck(ctx context.Context) error {
	res, err := i.client.Info(i.client.Info.WithContext(ctx))
	if err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return errors.Join(ErrHealthcheckFailed, fmt.Errorf("status %d", res.StatusCode))
	}
	return nil
}

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":          {"type": "keyword"},
      "user_id":     {"type": "keyword"},
      "title":       {"type": "text"},
      "content":     {"type": "text"},
      "uploaded_at": {"type": "date"}
    }
  }
}`

func (i *Index) ensureIndex(ctx context.Context) error {
	res, err := opensearchapi.IndicesExistsRequest{Index: []string{i.name}}.Do(ctx, i.client)
	if err != nil {
		return errors.Join(ErrRequestFailed, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = opensearchapi.IndicesCreateRequest{
		Index: i.name,
		Body:  bytes.NewReader([]byte(indexMapping)),
	}.Do(ctx, i.client)
	if err != nil {
		return errors.Join(ErrRequestFailed, err)
	}
	defer res.Body.Close()

	// A concurrent replica may have created it first.
	if res.IsError() && res.StatusCode != http.StatusBadRequest {
		return errors.Join(ErrRequestFailed, fmt.Errorf("create index: status %d", res.StatusCode))
	}
	return nil
}

// Put indexes or replaces doc.
func (i *Index) Put(ctx context.Context, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	res, err := opensearchapi.IndexRequest{
		Index:      i.name,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(body),
	}.Do(ctx, i.client)
	if err != nil {
		return errors.Join(ErrRequestFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.Join(ErrRequestFailed, fmt.Errorf("index document: status %d", res.StatusCode))
	}
	return nil
}

// Remove deletes the document. A missing document is not an error.
func (i *Index) Remove(ctx context.Context, id string) error {
	res, err := opensearchapi.DeleteRequest{Index: i.name, DocumentID: id}.Do(ctx, i.client)
	if err != nil {
		return errors.Join(ErrRequestFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return errors.Join(ErrRequestFailed, fmt.Errorf("delete document: status %d", res.StatusCode))
	}
	return nil
}

// Query runs a match query over title and content scoped to userID.
func (i *Index) Query(ctx context.Context, userID, text string, limit int) ([]Hit, error) {
	body, err := BuildQuery(userID, text, limit)
	if err != nil {
		return nil, err
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.name),
		i.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, errors.Join(ErrRequestFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.Join(ErrRequestFailed, fmt.Errorf("search: status %d", res.StatusCode))
	}

	return DecodeHits(res.Body)
}

// BuildQuery renders the search request body.
func BuildQuery(userID, text string, limit int) ([]byte, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	q := map[string]any{
		"size":    limit,
		"_source": []string{"id", "title"},
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{"term": map[string]any{"user_id": userID}},
				},
				"must": []any{
					map[string]any{
						"multi_match": map[string]any{
							"query":  text,
							"fields": []string{"title^2", "content"},
						},
					},
				},
			},
		},
	}
	return json.Marshal(q)
}

// DecodeHits parses a search response body.
func DecodeHits(r io.Reader) ([]Hit, error) {
	var resp struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source struct {
					ID    string `json:"id"`
					Title string `json:"title"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		hits = append(hits, Hit{ID: h.Source.ID, Title: h.Source.Title, Score: h.Score})
	}
	return hits, nil
}
