package store

import (
	"context"
	"crypto/sha1"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
	"github.com/elastic/go-elasticsearch/v9/typedapi/types/enums/sortorder"

	"github.com/John-Curcio/grepl-scraper/config"
	"github.com/John-Curcio/grepl-scraper/models"
)

// ESStore persists snapshots in an Elasticsearch index for deployments where
// the downstream extraction stage already searches ES. Idempotency comes from
// the create op: the document ID is derived from the snapshot key, and a 409
// on create means the key is already present.
type ESStore struct {
	client *elasticsearch.TypedClient
	index  string
}

// OpenES connects to Elasticsearch and ensures the snapshot index exists.
func OpenES(ctx context.Context, cfg *config.Config) (*ESStore, error) {
	client, err := elasticsearch.NewTypedClient(elasticsearch.Config{
		Username:  cfg.ESUsername,
		Password:  cfg.ESPassword,
		Addresses: []string{cfg.ESAddress},
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: es client: %w", err)
	}

	s := &ESStore{client: client, index: cfg.ESIndex}
	exists, err := client.Indices.Exists(s.index).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: check index: %w", err)
	}
	if !exists {
		if _, err := client.Indices.Create(s.index).Do(ctx); err != nil {
			return nil, fmt.Errorf("store: create index: %w", err)
		}
	}
	return s, nil
}

// docID derives a stable document ID from the snapshot uniqueness key.
func docID(snap *models.Snapshot) string {
	sum := sha1.Sum([]byte(snap.Key()))
	return hex.EncodeToString(sum[:])
}

// InsertIfAbsent creates the document; a version conflict means the key
// already exists and is reported as a duplicate, not an error.
func (s *ESStore) InsertIfAbsent(ctx context.Context, snap *models.Snapshot) (bool, error) {
	if err := snap.Validate(); err != nil {
		return false, fmt.Errorf("store: %w", err)
	}
	_, err := s.client.Create(s.index, docID(snap)).Document(snap).Do(ctx)
	if err != nil {
		var esErr *types.ElasticsearchError
		if errors.As(err, &esErr) && esErr.Status == http.StatusConflict {
			return false, nil
		}
		return false, fmt.Errorf("store: create snapshot %s: %w", snap.Key(), err)
	}
	return true, nil
}

// List returns snapshots ordered by (page_index, scroll_index).
func (s *ESStore) List(ctx context.Context, collectionURL string, limit, offset int) ([]*models.Snapshot, error) {
	query := &types.Query{
		Term: map[string]types.TermQuery{
			"collection_url.keyword": {Value: collectionURL},
		},
	}
	resp, err := s.client.Search().
		Index(s.index).
		Query(query).
		Sort(
			&types.SortOptions{SortOptions: map[string]types.FieldSort{"page_index": {Order: &sortorder.Asc}}},
			&types.SortOptions{SortOptions: map[string]types.FieldSort{"scroll_index": {Order: &sortorder.Asc}}},
		).
		From(offset).
		Size(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: search snapshots: %w", err)
	}

	snaps := make([]*models.Snapshot, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		snap := &models.Snapshot{}
		if err := json.Unmarshal(hit.Source_, snap); err != nil {
			return nil, fmt.Errorf("store: decode snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// MaxPageIndex reports the highest captured page index for the URL.
func (s *ESStore) MaxPageIndex(ctx context.Context, collectionURL string) (int, bool, error) {
	query := &types.Query{
		Term: map[string]types.TermQuery{
			"collection_url.keyword": {Value: collectionURL},
		},
	}
	resp, err := s.client.Search().
		Index(s.index).
		Query(query).
		Sort(&types.SortOptions{SortOptions: map[string]types.FieldSort{"page_index": {Order: &sortorder.Desc}}}).
		Size(1).
		Do(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("store: max page index: %w", err)
	}
	if len(resp.Hits.Hits) == 0 {
		return 0, false, nil
	}
	snap := &models.Snapshot{}
	if err := json.Unmarshal(resp.Hits.Hits[0].Source_, snap); err != nil {
		return 0, false, fmt.Errorf("store: decode snapshot: %w", err)
	}
	return snap.PageIndex, true, nil
}

// Count returns the total number of stored snapshots.
func (s *ESStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.Count().Index(s.index).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n.Count, nil
}

// Close is a no-op; the underlying HTTP transport needs no teardown.
func (s *ESStore) Close() error {
	return nil
}
