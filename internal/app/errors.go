package app

import (
	"errors"
	"net/http"

	"atelier/api/internal/artifact"
	"atelier/api/internal/assets"
	"atelier/api/internal/export"
)

// mapError translates domain errors into HTTP status, code, message and
// optional details. Everything unrecognized is an internal error; the
// message stays generic so internals never leak to clients.
func mapError(err error) (status int, code, message string, details any) {
	var versionNotFound artifact.VersionNotFoundError
	var conflict artifact.VersionConflictError
	var tooLarge artifact.ContentTooLargeError
	var badAsset assets.ErrUnsupportedContentType

	switch {
	case errors.Is(err, artifact.ErrArtifactNotFound):
		return http.StatusNotFound, "ARTIFACT_NOT_FOUND", "Artifact not found", nil
	case errors.Is(err, artifact.ErrThreadNotFound):
		return http.StatusNotFound, "THREAD_NOT_FOUND", "Thread not found", nil
	case errors.As(err, &versionNotFound):
		return http.StatusNotFound, "VERSION_NOT_FOUND", "Artifact version not found",
			map[string]any{"versionNumber": versionNotFound.Number}
	case errors.As(err, &conflict):
		return http.StatusConflict, "VERSION_CONFLICT", "Concurrent update, please retry", nil
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "CONTENT_TOO_LARGE", "Content exceeds size limit",
			map[string]any{"size": tooLarge.Size, "max": tooLarge.Max}
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", "format must be 'pdf' or 'docx'", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF export is temporarily unavailable", nil
	case errors.As(err, &badAsset):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Unsupported asset content type", nil
	default:
		return http.StatusInternalServerError, "INTERNAL", "Internal server error", nil
	}
}
