package search

import (
	"fmt"
	"iter"
	"log"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/khanglvm/skill-hub/internal/storage"
	"github.com/khanglvm/skill-hub/internal/tier"
)

const defaultLimit = 10

// Indexer manages the search index for the learning corpus.
type Indexer struct {
	bleveIndex bleve.Index
	mu         sync.RWMutex
}

// NewIndexer creates a new search indexer with an in-memory Bleve index.
func NewIndexer() (*Indexer, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}
	return &Indexer{bleveIndex: index}, nil
}

// buildIndexMapping creates the Bleve index mapping.
func buildIndexMapping() mapping.IndexMapping {
	patternMapping := bleve.NewDocumentMapping()

	for _, field := range []string{"summary", "steps", "fixes", "userContext"} {
		textField := bleve.NewTextFieldMapping()
		textField.Store = field == "summary"
		patternMapping.AddFieldMappingsAt(field, textField)
	}

	// Filters: exact match, not analyzed
	for _, field := range []string{"skill", "contentType"} {
		keywordField := bleve.NewKeywordFieldMapping()
		keywordField.IncludeInAll = false
		patternMapping.AddFieldMappingsAt(field, keywordField)
	}

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = patternMapping
	return indexMapping
}

func toDocument(p storage.Pattern) map[string]interface{} {
	return map[string]interface{}{
		"summary":     p.Summary,
		"steps":       strings.Join(p.Steps, "\n"),
		"fixes":       strings.Join(p.Fixes, "\n"),
		"userContext": p.UserContext,
		"skill":       string(p.Skill),
		"contentType": string(p.ContentType),
	}
}

// IndexPattern adds or replaces one pattern.
func (i *Indexer) IndexPattern(p storage.Pattern) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.bleveIndex.Index(p.ID, toDocument(p)); err != nil {
		return fmt.Errorf("failed to index pattern %s: %w", p.ID, err)
	}
	return nil
}

// Rebuild indexes every pattern yielded by patterns in batches and returns
// how many were indexed. Patterns that fail to index are skipped with a
// warning; a read error aborts the rebuild.
func (i *Indexer) Rebuild(patterns iter.Seq2[storage.Pattern, error]) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	const batchSize = 500
	batch := i.bleveIndex.NewBatch()
	indexed := 0

	flush := func() error {
		if batch.Size() == 0 {
			return nil
		}
		if err := i.bleveIndex.Batch(batch); err != nil {
			return fmt.Errorf("failed to batch index patterns: %w", err)
		}
		batch.Reset()
		return nil
	}

	for p, err := range patterns {
		if err != nil {
			return indexed, fmt.Errorf("failed to read corpus: %w", err)
		}
		if err := batch.Index(p.ID, toDocument(p)); err != nil {
			log.Printf("Warning: failed to index pattern %s: %v", p.ID, err)
			continue
		}
		indexed++
		if batch.Size() >= batchSize {
			if err := flush(); err != nil {
				return indexed, err
			}
		}
	}
	return indexed, flush()
}

// Search returns the patterns best matching text, optionally restricted to
// one skill. An empty text matches every pattern.
func (i *Indexer) Search(text string, skill tier.Skill, limit int) ([]Result, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if limit <= 0 {
		limit = defaultLimit
	}

	var q query.Query
	if strings.TrimSpace(text) == "" {
		q = bleve.NewMatchAllQuery()
	} else {
		q = bleve.NewMatchQuery(text)
	}
	if skill != "" {
		skillQuery := bleve.NewTermQuery(string(skill))
		skillQuery.SetField("skill")
		q = bleve.NewConjunctionQuery(q, skillQuery)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"summary", "skill", "contentType"}

	res, err := i.bleveIndex.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}
	return convertResults(res), nil
}

func convertResults(res *bleve.SearchResult) []Result {
	results := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		summary, _ := hit.Fields["summary"].(string)
		skill, _ := hit.Fields["skill"].(string)
		contentType, _ := hit.Fields["contentType"].(string)

		results = append(results, Result{
			PatternID:   hit.ID,
			Skill:       tier.Skill(skill),
			ContentType: storage.ContentType(contentType),
			Summary:     summary,
			Score:       hit.Score,
		})
	}
	return results
}

// Count returns the total number of indexed patterns.
func (i *Indexer) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	docCount, err := i.bleveIndex.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to get doc count: %w", err)
	}
	return docCount, nil
}

// Close closes the index and releases resources.
func (i *Indexer) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.bleveIndex != nil {
		return i.bleveIndex.Close()
	}
	return nil
}
