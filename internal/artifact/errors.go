package artifact

import (
	"errors"
	"fmt"
)

var (
	// ErrArtifactNotFound indicates the artifact id resolves to nothing.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrThreadNotFound indicates the referenced conversation thread does not exist.
	ErrThreadNotFound = errors.New("thread not found")
)

// VersionNotFoundError indicates a version number absent from the
// artifact's chain. It also covers the integrity fault where
// current_version names no row.
type VersionNotFoundError struct {
	Number int
}

func (e VersionNotFoundError) Error() string {
	return fmt.Sprintf("artifact version %d not found", e.Number)
}

// VersionConflictError indicates concurrent writers kept winning for
// the whole retry budget. The caller should re-read and retry.
type VersionConflictError struct {
	ArtifactID string
}

func (e VersionConflictError) Error() string {
	return fmt.Sprintf("artifact %s version conflict after retries", e.ArtifactID)
}

// ContentTooLargeError indicates submitted content exceeds the
// configured limit. Size and Max are in bytes.
type ContentTooLargeError struct {
	Size int
	Max  int
}

func (e ContentTooLargeError) Error() string {
	return fmt.Sprintf("content size %d exceeds limit %d", e.Size, e.Max)
}
