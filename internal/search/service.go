package search

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// mirrorTimeout bounds a single background write to the mirror.
const mirrorTimeout = 10 * time.Second

// Service is the facade that tries the mirror first and falls back to FTS.
type Service struct {
	fts    *FTS
	mirror Mirror
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewService creates a search service. mirror may be nil.
func NewService(fts *FTS, mirror Mirror, logger *slog.Logger) *Service {
	return &Service{fts: fts, mirror: mirror, logger: logger}
}

// Search tries the mirror if healthy, otherwise falls back to FTS.
func (s *Service) Search(ctx context.Context, q Query) ([]string, error) {
	if s.mirror != nil && s.mirror.Healthy() {
		ids, err := s.mirror.Search(ctx, q)
		if err == nil {
			return ids, nil
		}
		s.logger.Warn("search mirror failed, falling back to fts", "kind", q.Kind, "error", err)
	}
	return s.fts.Search(ctx, q)
}

// Index pushes records to the mirror in the background. Call it only
// after the writing transaction has committed.
func (s *Service) Index(recs ...Record) {
	if s.mirror == nil || !s.mirror.Healthy() || len(recs) == 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := s.mirror.Index(ctx, recs...); err != nil {
			s.logger.Warn("search mirror index failed", "records", len(recs), "error", err)
		}
	}()
}

// Remove deletes a record from the mirror in the background.
func (s *Service) Remove(kind Kind, id string) {
	if s.mirror == nil || !s.mirror.Healthy() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := s.mirror.Delete(ctx, kind, id); err != nil {
			s.logger.Warn("search mirror delete failed", "kind", kind, "id", id, "error", err)
		}
	}()
}

// Reindex loads every record from SQLite and pushes it to the mirror
// synchronously. It returns the number of records sent.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	if s.mirror == nil || !s.mirror.Healthy() {
		return 0, nil
	}
	total := 0
	for _, kind := range []Kind{KindTask, KindDocument} {
		recs, err := s.fts.Records(ctx, kind)
		if err != nil {
			return total, err
		}
		if len(recs) == 0 {
			continue
		}
		if err := s.mirror.Index(ctx, recs...); err != nil {
			return total, err
		}
		total += len(recs)
	}
	return total, nil
}

// Wait blocks until pending background mirror writes finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// MirrorHealthy reports whether a mirror is configured and reachable.
func (s *Service) MirrorHealthy() bool {
	return s.mirror != nil && s.mirror.Healthy()
}
