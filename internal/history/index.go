package history

import (
	"fmt"
	"log"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// SearchResult is one transcript hit.
type SearchResult struct {
	ThreadID  string
	ProjectID string
	Prompt    string
	Score     float64
}

// Index provides full-text search over archived transcripts.
type Index struct {
	index bleve.Index
}

// OpenIndex creates or opens the transcript index at path.
// A corrupted index is deleted and rebuilt empty; the archive table remains
// the source of truth.
func OpenIndex(path string) (*Index, error) {
	index, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create transcript index: %w", err)
		}
	} else if err != nil {
		log.Printf("transcript index appears corrupted (error: %v), recreating", err)
		if index != nil {
			index.Close()
		}
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, fmt.Errorf("failed to remove corrupted index: %w", rmErr)
		}
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to recreate transcript index: %w", err)
		}
	}

	return &Index{index: index}, nil
}

// OpenMemIndex creates an in-memory index. Used by tests.
func OpenMemIndex() (*Index, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory index: %w", err)
	}
	return &Index{index: index}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	threadMapping := bleve.NewDocumentMapping()

	threadIDField := bleve.NewTextFieldMapping()
	threadIDField.Analyzer = keyword.Name
	threadIDField.Store = true
	threadMapping.AddFieldMappingsAt("thread_id", threadIDField)

	promptField := bleve.NewTextFieldMapping()
	promptField.Analyzer = standard.Name
	promptField.Store = false
	threadMapping.AddFieldMappingsAt("prompt", promptField)

	transcriptField := bleve.NewTextFieldMapping()
	transcriptField.Analyzer = standard.Name
	transcriptField.Store = false
	threadMapping.AddFieldMappingsAt("transcript", transcriptField)

	indexMapping.DefaultMapping = threadMapping
	return indexMapping
}

type threadDoc struct {
	ThreadID   string `json:"thread_id"`
	Prompt     string `json:"prompt"`
	Transcript string `json:"transcript"`
}

// IndexThread adds or replaces a thread's transcript in the index.
func (i *Index) IndexThread(rec ThreadRecord) error {
	doc := threadDoc{
		ThreadID:   rec.ThreadID,
		Prompt:     rec.Prompt,
		Transcript: rec.Transcript,
	}
	if err := i.index.Index(rec.ThreadID, doc); err != nil {
		return fmt.Errorf("failed to index thread %s: %w", rec.ThreadID, err)
	}
	return nil
}

// Search returns the top k transcript hits for a query.
func (i *Index) Search(query string, k int) ([]SearchResult, error) {
	if k <= 0 {
		k = 10
	}

	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, k, 0, false)

	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("transcript search failed: %w", err)
	}

	var out []SearchResult
	for _, hit := range res.Hits {
		out = append(out, SearchResult{
			ThreadID: hit.ID,
			Score:    hit.Score,
		})
	}
	return out, nil
}

// Close closes the index.
func (i *Index) Close() error {
	return i.index.Close()
}
