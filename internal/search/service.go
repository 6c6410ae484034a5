package search

import (
	"context"
	"log"

	"atelier/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
// It also implements the indexer consumed by the artifact service.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexArtifact mirrors the artifact into Meilisearch (fire-and-forget).
// The Postgres fallback needs no push; it reads the fts column directly.
func (s *Service) IndexArtifact(_ context.Context, a store.Artifact, plainText string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := ArtifactRecord{
		ID:       a.ID,
		ThreadID: a.ThreadID,
		UserID:   a.UserID,
		Title:    a.Title,
		Content:  plainText,
	}
	go func() {
		if err := s.meili.IndexArtifact(record); err != nil {
			log.Printf("search: index artifact %s: %v", a.ID, err)
		}
	}()
}

// DeleteArtifact removes the artifact from Meilisearch (fire-and-forget).
func (s *Service) DeleteArtifact(_ context.Context, artifactID string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteArtifact(artifactID); err != nil {
			log.Printf("search: delete artifact %s: %v", artifactID, err)
		}
	}()
}

// ReindexAllFromPG reloads every artifact from PostgreSQL into
// Meilisearch. Called at startup when Meilisearch is configured.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if len(records) == 0 {
		return
	}
	if err := s.meili.IndexArtifacts(records); err != nil {
		log.Printf("search: reindex artifacts: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
