package export

import (
	"context"
	"fmt"

	"tapestry/api/internal/doctree"
	"tapestry/api/internal/entity"
	"tapestry/api/internal/graph"
	"tapestry/api/internal/store"
)

// Service provides document export functionality
type Service struct {
	uploader *Uploader
}

// NewService creates a new export service. uploader may be nil when no
// object store is configured; uploads then fail with ErrUploaderNotConfigured.
func NewService(uploader *Uploader) *Service {
	return &Service{uploader: uploader}
}

// Export renders the document in the requested format. The tree and graph are
// rebuilt from the document text, so the artifact always matches the stored
// snapshot.
func (s *Service) Export(ctx context.Context, req Request, doc store.Document) (*Result, error) {
	tree := doctree.Parse(doc.Content)

	data := TemplateData{
		Title:     doc.Title,
		Author:    doc.UpdatedBy,
		UpdatedAt: doc.UpdatedAt,
		TreeHTML:  renderTree(tree),
	}
	if req.IncludeGraph {
		objects := entity.LoadDataObjects(doc.Content)
		configs := entity.LoadExpandedConfigs(doc.Content)
		data.GraphHTML = renderGraph(graph.Build(tree, objects, configs))
	}

	html, err := RenderDocumentHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	var res *Result
	switch req.Format {
	case FormatHTML:
		res = &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(doc.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}
	case FormatPDF:
		res, err = exportPDF(html, doc.Title)
	case FormatDOCX:
		res, err = exportDOCX(html, doc.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
	if err != nil {
		return nil, err
	}

	if req.Upload {
		if s.uploader == nil {
			return nil, ErrUploaderNotConfigured
		}
		key, err := s.uploader.Upload(ctx, doc.ID, res)
		if err != nil {
			return nil, fmt.Errorf("upload artifact: %w", err)
		}
		res.ObjectURL = key
	}
	return res, nil
}
