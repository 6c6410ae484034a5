// Package artifact implements the document lifecycle behind the chat
// surface: create, append-only versioning with optimistic concurrency,
// revert, and deletion. Authentication happens upstream; callers pass
// the already-resolved user id.
package artifact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"atelier/api/internal/sanitize"
	"atelier/api/internal/store"
	"atelier/api/internal/util"
)

// updateAttempts bounds the optimistic retry loop. Conflicts beyond
// this budget surface to the caller as VersionConflictError.
const updateAttempts = 3

type dataStore interface {
	ThreadExists(context.Context, string) (bool, error)
	CreateArtifactWithVersion(context.Context, store.Artifact, store.ArtifactVersion, string) error
	GetArtifact(context.Context, string) (store.Artifact, error)
	GetArtifactWithVersions(context.Context, string) (store.Artifact, error)
	GetVersion(context.Context, string, int) (store.ArtifactVersion, error)
	AppendVersion(context.Context, store.ArtifactVersion, int, string) error
	ListArtifactsByThread(context.Context, string) ([]store.Artifact, error)
	DeleteArtifact(context.Context, string) (bool, error)
}

// ContentCache holds the current version of hot artifacts so reads skip
// the database. All methods are best-effort; a broken cache degrades to
// store reads.
type ContentCache interface {
	GetCurrent(ctx context.Context, artifactID string) (store.ArtifactVersion, bool)
	SetCurrent(ctx context.Context, version store.ArtifactVersion)
	Invalidate(ctx context.Context, artifactID string)
}

// Indexer mirrors artifact metadata and plain text into the search
// backend. Implementations absorb their own failures; indexing never
// blocks or fails a write.
type Indexer interface {
	IndexArtifact(ctx context.Context, a store.Artifact, plainText string)
	DeleteArtifact(ctx context.Context, artifactID string)
}

var allowedAuthorTypes = map[string]struct{}{
	store.AuthorUser:      {},
	store.AuthorAssistant: {},
}

type Service struct {
	store dataStore
	cache ContentCache
	index Indexer

	maxContentBytes int
}

// NewService wires the artifact service. cache and index may be nil;
// the service then runs without them.
func NewService(st dataStore, cache ContentCache, index Indexer, maxContentBytes int) *Service {
	return &Service{store: st, cache: cache, index: index, maxContentBytes: maxContentBytes}
}

// Create stores a new artifact with its first version. Content is
// sanitized before anything is persisted; the raw submission never
// reaches the database.
func (s *Service) Create(ctx context.Context, threadID, userID, title, content, authorType string) (store.Artifact, error) {
	if len(content) > s.maxContentBytes {
		return store.Artifact{}, ContentTooLargeError{Size: len(content), Max: s.maxContentBytes}
	}
	if _, ok := allowedAuthorTypes[authorType]; !ok {
		return store.Artifact{}, fmt.Errorf("invalid author type %q", authorType)
	}

	exists, err := s.store.ThreadExists(ctx, threadID)
	if err != nil {
		return store.Artifact{}, fmt.Errorf("check thread: %w", err)
	}
	if !exists {
		return store.Artifact{}, ErrThreadNotFound
	}

	clean := sanitize.Sanitize(content)
	plain := sanitize.PlainText(clean)

	a := store.Artifact{
		ID:             util.NewID("art"),
		ThreadID:       threadID,
		UserID:         userID,
		Title:          title,
		CurrentVersion: 1,
	}
	v := store.ArtifactVersion{
		ID:            util.NewID("ver"),
		ArtifactID:    a.ID,
		VersionNumber: 1,
		Content:       clean,
		AuthorType:    authorType,
		AuthorID:      authorID(authorType, userID),
	}

	if err := s.store.CreateArtifactWithVersion(ctx, a, v, plain); err != nil {
		return store.Artifact{}, fmt.Errorf("create artifact: %w", err)
	}

	created, err := s.store.GetArtifact(ctx, a.ID)
	if err != nil {
		return store.Artifact{}, fmt.Errorf("reload artifact: %w", err)
	}
	if s.index != nil {
		s.index.IndexArtifact(ctx, created, plain)
	}
	return created, nil
}

// Update appends a new version carrying the sanitized content and
// advances the current pointer. Lost races against concurrent writers
// are retried with a fresh read; exhaustion reports a conflict without
// having written anything.
func (s *Service) Update(ctx context.Context, artifactID, userID, content, authorType string) (store.ArtifactVersion, error) {
	if len(content) > s.maxContentBytes {
		return store.ArtifactVersion{}, ContentTooLargeError{Size: len(content), Max: s.maxContentBytes}
	}
	if _, ok := allowedAuthorTypes[authorType]; !ok {
		return store.ArtifactVersion{}, fmt.Errorf("invalid author type %q", authorType)
	}

	clean := sanitize.Sanitize(content)
	plain := sanitize.PlainText(clean)

	for attempt := 0; attempt < updateAttempts; attempt++ {
		a, err := s.store.GetArtifact(ctx, artifactID)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ArtifactVersion{}, ErrArtifactNotFound
		}
		if err != nil {
			return store.ArtifactVersion{}, fmt.Errorf("load artifact: %w", err)
		}

		v := store.ArtifactVersion{
			ID:            util.NewID("ver"),
			ArtifactID:    artifactID,
			VersionNumber: a.CurrentVersion + 1,
			Content:       clean,
			AuthorType:    authorType,
			AuthorID:      authorID(authorType, userID),
		}

		err = s.store.AppendVersion(ctx, v, a.CurrentVersion, plain)
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return store.ArtifactVersion{}, fmt.Errorf("append version: %w", err)
		}

		s.afterWrite(ctx, artifactID, v, plain)
		return v, nil
	}
	return store.ArtifactVersion{}, VersionConflictError{ArtifactID: artifactID}
}

// Revert appends the content of an earlier version as a new
// user-authored version. The target content is re-sanitized so policy
// tightening applies to resurrected markup. A single attempt is made;
// a concurrent writer surfaces as a conflict for the caller to resolve
// against the now-changed chain.
func (s *Service) Revert(ctx context.Context, artifactID, userID string, targetVersion int) (store.ArtifactVersion, error) {
	a, err := s.store.GetArtifact(ctx, artifactID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ArtifactVersion{}, ErrArtifactNotFound
	}
	if err != nil {
		return store.ArtifactVersion{}, fmt.Errorf("load artifact: %w", err)
	}

	target, err := s.store.GetVersion(ctx, artifactID, targetVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ArtifactVersion{}, VersionNotFoundError{Number: targetVersion}
	}
	if err != nil {
		return store.ArtifactVersion{}, fmt.Errorf("load target version: %w", err)
	}

	clean := sanitize.Sanitize(target.Content)
	plain := sanitize.PlainText(clean)

	v := store.ArtifactVersion{
		ID:            util.NewID("ver"),
		ArtifactID:    artifactID,
		VersionNumber: a.CurrentVersion + 1,
		Content:       clean,
		AuthorType:    store.AuthorUser,
		AuthorID:      &userID,
	}

	err = s.store.AppendVersion(ctx, v, a.CurrentVersion, plain)
	if errors.Is(err, store.ErrVersionConflict) {
		return store.ArtifactVersion{}, VersionConflictError{ArtifactID: artifactID}
	}
	if err != nil {
		return store.ArtifactVersion{}, fmt.Errorf("append revert version: %w", err)
	}

	s.afterWrite(ctx, artifactID, v, plain)
	return v, nil
}

// Current returns the artifact with its current version content.
func (s *Service) Current(ctx context.Context, artifactID string) (store.Artifact, store.ArtifactVersion, error) {
	a, err := s.store.GetArtifact(ctx, artifactID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Artifact{}, store.ArtifactVersion{}, ErrArtifactNotFound
	}
	if err != nil {
		return store.Artifact{}, store.ArtifactVersion{}, fmt.Errorf("load artifact: %w", err)
	}

	if s.cache != nil {
		if v, ok := s.cache.GetCurrent(ctx, artifactID); ok && v.VersionNumber == a.CurrentVersion {
			return a, v, nil
		}
	}

	v, err := s.store.GetVersion(ctx, artifactID, a.CurrentVersion)
	if errors.Is(err, sql.ErrNoRows) {
		// the pointer names a missing row; the chain is corrupt
		return store.Artifact{}, store.ArtifactVersion{}, VersionNotFoundError{Number: a.CurrentVersion}
	}
	if err != nil {
		return store.Artifact{}, store.ArtifactVersion{}, fmt.Errorf("load current version: %w", err)
	}

	if s.cache != nil {
		s.cache.SetCurrent(ctx, v)
	}
	return a, v, nil
}

// WithVersions returns the artifact and its full ascending version chain.
func (s *Service) WithVersions(ctx context.Context, artifactID string) (store.Artifact, error) {
	a, err := s.store.GetArtifactWithVersions(ctx, artifactID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Artifact{}, ErrArtifactNotFound
	}
	if err != nil {
		return store.Artifact{}, fmt.Errorf("load artifact with versions: %w", err)
	}
	return a, nil
}

// ListByThread returns the thread's artifacts, most recently updated first.
func (s *Service) ListByThread(ctx context.Context, threadID string) ([]store.Artifact, error) {
	exists, err := s.store.ThreadExists(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("check thread: %w", err)
	}
	if !exists {
		return nil, ErrThreadNotFound
	}
	return s.store.ListArtifactsByThread(ctx, threadID)
}

// Delete removes the artifact and its whole version chain.
func (s *Service) Delete(ctx context.Context, artifactID string) error {
	affected, err := s.store.DeleteArtifact(ctx, artifactID)
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	if !affected {
		return ErrArtifactNotFound
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, artifactID)
	}
	if s.index != nil {
		s.index.DeleteArtifact(ctx, artifactID)
	}
	return nil
}

func (s *Service) afterWrite(ctx context.Context, artifactID string, v store.ArtifactVersion, plain string) {
	if s.cache != nil {
		s.cache.SetCurrent(ctx, v)
	}
	if s.index != nil {
		if a, err := s.store.GetArtifact(ctx, artifactID); err == nil {
			s.index.IndexArtifact(ctx, a, plain)
		}
	}
}

func authorID(authorType, userID string) *string {
	if authorType == store.AuthorUser {
		return &userID
	}
	return nil
}
