package export

import "fmt"

// Service provides content export functionality
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Export renders the page and converts it to the requested format.
func (s *Service) Export(page Page, format Format) (*Result, error) {
	html, err := RenderContentHTML(page)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(page.Topic) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(html, page.Topic)
	case FormatDOCX:
		return exportDOCX(html, page.Topic)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// sanitizeFilename creates a safe filename from a topic
func sanitizeFilename(topic string) string {
	result := ""
	for _, r := range topic {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result += string(r)
		case r == ' ':
			result += "-"
		case r == '-', r == '_':
			result += string(r)
		}
	}

	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "content"
	}
	return result
}
