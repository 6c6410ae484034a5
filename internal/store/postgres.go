package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrVersionConflict signals that a concurrent writer advanced the
// artifact's current version between the caller's read and its
// conditional write. Callers decide whether to retry.
var ErrVersionConflict = errors.New("artifact version conflict")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) ThreadExists(ctx context.Context, threadID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM threads WHERE id=$1)`, threadID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check thread: %w", err)
	}
	return exists, nil
}

// CreateArtifactWithVersion inserts the artifact row and its version-1
// row in one transaction. Nothing is visible if either insert fails.
func (s *PostgresStore) CreateArtifactWithVersion(ctx context.Context, artifact Artifact, version ArtifactVersion, plainText string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create artifact tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO artifacts (id, thread_id, user_id, title, current_version, current_text)
		VALUES ($1, $2, $3, $4, 1, $5)
	`, artifact.ID, artifact.ThreadID, artifact.UserID, artifact.Title, plainText); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert artifact: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO artifact_versions (id, artifact_id, version_number, content, author_type, author_id)
		VALUES ($1, $2, 1, $3, $4, $5)
	`, version.ID, artifact.ID, version.Content, version.AuthorType, version.AuthorID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert version 1: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create artifact: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetArtifact(ctx context.Context, artifactID string) (Artifact, error) {
	var item Artifact
	err := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, user_id, title, current_version, created_at, updated_at
		FROM artifacts
		WHERE id=$1
	`, artifactID).Scan(&item.ID, &item.ThreadID, &item.UserID, &item.Title, &item.CurrentVersion, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Artifact{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetArtifactWithVersions(ctx context.Context, artifactID string) (Artifact, error) {
	artifact, err := s.GetArtifact(ctx, artifactID)
	if err != nil {
		return Artifact{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, artifact_id, version_number, content, author_type, author_id, created_at
		FROM artifact_versions
		WHERE artifact_id=$1
		ORDER BY version_number ASC
	`, artifactID)
	if err != nil {
		return Artifact{}, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	versions := make([]ArtifactVersion, 0)
	for rows.Next() {
		var v ArtifactVersion
		if err := rows.Scan(&v.ID, &v.ArtifactID, &v.VersionNumber, &v.Content, &v.AuthorType, &v.AuthorID, &v.CreatedAt); err != nil {
			return Artifact{}, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return Artifact{}, fmt.Errorf("iterate versions: %w", err)
	}
	artifact.Versions = versions
	return artifact, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, artifactID string, versionNumber int) (ArtifactVersion, error) {
	var v ArtifactVersion
	err := s.db.QueryRowContext(ctx, `
		SELECT id, artifact_id, version_number, content, author_type, author_id, created_at
		FROM artifact_versions
		WHERE artifact_id=$1 AND version_number=$2
	`, artifactID, versionNumber).Scan(&v.ID, &v.ArtifactID, &v.VersionNumber, &v.Content, &v.AuthorType, &v.AuthorID, &v.CreatedAt)
	if err != nil {
		return ArtifactVersion{}, err
	}
	return v, nil
}

// AppendVersion atomically inserts a version row and advances the
// artifact's current_version from expectedCurrent to the new number.
// The conditional UPDATE is the compare-and-swap: zero rows affected
// means another writer won, and the transaction rolls back with
// ErrVersionConflict. A duplicate (artifact_id, version_number) insert
// from a racing writer surfaces the same way via the unique index.
func (s *PostgresStore) AppendVersion(ctx context.Context, version ArtifactVersion, expectedCurrent int, plainText string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append version tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO artifact_versions (id, artifact_id, version_number, content, author_type, author_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, version.ID, version.ArtifactID, version.VersionNumber, version.Content, version.AuthorType, version.AuthorID); err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			return ErrVersionConflict
		}
		return fmt.Errorf("insert version: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE artifacts
		SET current_version=$3, current_text=$4, updated_at=NOW()
		WHERE id=$1 AND current_version=$2
	`, version.ArtifactID, expectedCurrent, version.VersionNumber, plainText)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("advance current version: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("advance current version rows: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return ErrVersionConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append version: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListArtifactsByThread(ctx context.Context, threadID string) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, user_id, title, current_version, created_at, updated_at
		FROM artifacts
		WHERE thread_id=$1
		ORDER BY updated_at DESC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts by thread: %w", err)
	}
	defer rows.Close()

	items := make([]Artifact, 0)
	for rows.Next() {
		var item Artifact
		if err := rows.Scan(&item.ID, &item.ThreadID, &item.UserID, &item.Title, &item.CurrentVersion, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return items, nil
}

// DeleteArtifact removes the artifact; versions cascade via the foreign key.
func (s *PostgresStore) DeleteArtifact(ctx context.Context, artifactID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id=$1`, artifactID)
	if err != nil {
		return false, fmt.Errorf("delete artifact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete artifact rows: %w", err)
	}
	return affected > 0, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
