// Package export turns stored artifact content into downloadable
// documents. Word output is produced natively; PDF goes through a
// headless browser renderer.
package export

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"atelier/api/internal/docmodel"
	"atelier/api/internal/docx"
	"atelier/api/internal/sanitize"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var (
	// ErrUnsupportedFormat indicates the requested format is not one of pdf or docx.
	ErrUnsupportedFormat = errors.New("export unsupported format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// Renderer converts a full HTML page into PDF bytes.
type Renderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

// Service provides artifact export functionality
type Service struct {
	renderer Renderer
}

// NewService creates a new export service. The renderer may be nil, in
// which case PDF export reports its dependency as missing.
func NewService(renderer Renderer) *Service {
	return &Service{renderer: renderer}
}

// Export generates an export of artifact content in the requested
// format. Content is filtered through the markup policy again before
// rendering, so only allow-listed constructs ever reach an output
// document regardless of what the stored row holds. The title drives
// the download filename; it never affects document content.
func (s *Service) Export(ctx context.Context, title, content string, format Format) (*Result, error) {
	content = sanitize.Sanitize(content)
	switch format {
	case FormatDOCX:
		return s.exportDOCX(title, content)
	case FormatPDF:
		return s.exportPDF(ctx, title, content)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func (s *Service) exportDOCX(title, content string) (*Result, error) {
	blocks := docmodel.Build(content)
	data, err := docx.Encode(blocks)
	if err != nil {
		return nil, fmt.Errorf("encode docx: %w", err)
	}
	return &Result{
		Data:     data,
		Filename: sanitizeFilename(title) + ".docx",
		MimeType: mimeDOCX,
	}, nil
}

func (s *Service) exportPDF(ctx context.Context, title, content string) (*Result, error) {
	if s.renderer == nil {
		return nil, fmt.Errorf("%w: no renderer configured", ErrPDFDependencyMissing)
	}

	page, err := RenderPage(title, content)
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}

	data, err := s.renderer.RenderPDF(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return &Result{
		Data:     data,
		Filename: sanitizeFilename(title) + ".pdf",
		MimeType: mimePDF,
	}, nil
}

// sanitizeFilename creates a safe download filename from a title.
// Letters, digits, spaces, hyphens and underscores survive; everything
// else is dropped and surrounding whitespace trimmed.
func sanitizeFilename(title string) string {
	result := ""
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result += string(r)
		case r == ' ', r == '-', r == '_':
			result += string(r)
		default:
			// Skip other characters
		}
	}

	// collapse runs of spaces left behind by dropped characters
	result = strings.Join(strings.Fields(result), " ")

	// Limit length
	if len(result) > 64 {
		result = result[:64]
	}

	if result == "" {
		result = "artifact"
	}

	return result
}
