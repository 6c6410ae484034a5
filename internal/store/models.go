package store

import "time"

// AuthorType identifies who produced an artifact version.
const (
	AuthorUser      = "USER"
	AuthorAssistant = "ASSISTANT"
)

// Artifact is a versioned document container owned by a user within a
// conversation thread. CurrentVersion always names exactly one row in
// the version chain; version numbers are dense and start at 1.
type Artifact struct {
	ID             string
	ThreadID       string
	UserID         string
	Title          string
	CurrentVersion int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	// Versions is populated only by GetArtifactWithVersions, ordered by
	// ascending version number.
	Versions []ArtifactVersion
}

// ArtifactVersion is an immutable snapshot of artifact content. Content
// is stored post-sanitization and never mutated; corrections append new
// versions. AuthorID is set iff AuthorType is USER.
type ArtifactVersion struct {
	ID            string
	ArtifactID    string
	VersionNumber int
	Content       string
	AuthorType    string
	AuthorID      *string
	CreatedAt     time.Time
}
