package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxTasks     = "devdesk_tasks"
	idxDocuments = "devdesk_documents"
)

func indexUID(kind Kind) (string, error) {
	switch kind {
	case KindTask:
		return idxTasks, nil
	case KindDocument:
		return idxDocuments, nil
	default:
		return "", fmt.Errorf("search: unknown kind %q", kind)
	}
}

// Meili implements Mirror via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  *slog.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. An
// unreachable server leaves the mirror unhealthy; a background loop
// re-checks every interval.
func NewMeili(url, apiKey string, logger *slog.Logger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		logger: logger,
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", "url", url, "error", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop(10 * time.Second)
	return m
}

func (m *Meili) configureIndexes() {
	searchable := []string{"title", "body"}
	for _, uid := range []string{idxTasks, idxDocuments} {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        uid,
			PrimaryKey: "id",
		}); err != nil {
			m.logger.Debug("create meilisearch index (may already exist)", "index", uid, "error", err)
		}
		if _, err := m.client.Index(uid).UpdateSearchableAttributes(&searchable); err != nil {
			m.logger.Warn("update meilisearch searchable attributes", "index", uid, "error", err)
		}
	}
}

func (m *Meili) healthLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the index for q.Kind and returns hit ids.
func (m *Meili) Search(_ context.Context, q Query) ([]string, error) {
	if !m.healthy.Load() {
		return nil, errors.New("meilisearch unhealthy")
	}
	uid, err := indexUID(q.Kind)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID: uid,
			Query:    q.Text,
			Limit:    int64(q.limit()),
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	var ids []string
	for _, sr := range resp.Results {
		for _, hit := range sr.Hits {
			if id := decodeString(hit, "id"); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// Index adds or replaces records. Records of different kinds may be mixed.
func (m *Meili) Index(_ context.Context, recs ...Record) error {
	byIndex := make(map[string][]Record)
	for _, r := range recs {
		uid, err := indexUID(r.Kind)
		if err != nil {
			return err
		}
		byIndex[uid] = append(byIndex[uid], r)
	}
	for uid, batch := range byIndex {
		if _, err := m.client.Index(uid).AddDocuments(batch, nil); err != nil {
			return fmt.Errorf("meilisearch index %s: %w", uid, err)
		}
	}
	return nil
}

// Delete removes a record from the index.
func (m *Meili) Delete(_ context.Context, kind Kind, id string) error {
	uid, err := indexUID(kind)
	if err != nil {
		return err
	}
	_, err = m.client.Index(uid).DeleteDocument(id, nil)
	return err
}
