package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"manualqa/client"
	"manualqa/internal"
	"manualqa/utils"
)

// base64 and JSON framing overhead left out of the upload size budget
const uploadFramingBytes = 4 << 10

// ManualMIMETypes are the document types the backend indexes
var ManualMIMETypes = []string{"application/pdf", "text/plain", "text/markdown"}

// ManualExtensions are the file extensions accepted for upload
var ManualExtensions = []string{".pdf", ".txt", ".md"}

// ManualsService manages uploaded manuals
type ManualsService struct {
	pipeline *client.Pipeline
	files    internal.FileSelector
}

// NewManualsService creates a manuals facade. files may be nil when
// uploads are not needed.
func NewManualsService(p *client.Pipeline, files internal.FileSelector) *ManualsService {
	return &ManualsService{pipeline: p, files: files}
}

// UploadOptions configures Upload
type UploadOptions struct {
	Title string
	// WrapBody observes the request body, e.g. for progress
	WrapBody func(r io.Reader, size int64) io.Reader
}

// Constraints is what a file must satisfy to fit in one upload request
func (s *ManualsService) Constraints() internal.FileConstraints {
	return internal.FileConstraints{
		MaxSizeBytes:      maxRawUpload(s.pipeline.MaxBodyBytes()),
		AllowedMIMETypes:  ManualMIMETypes,
		AllowedExtensions: ManualExtensions,
	}
}

// maxRawUpload is the largest file whose base64 form fits in limit
func maxRawUpload(limit int64) int64 {
	if limit <= uploadFramingBytes {
		return 0
	}
	return (limit - uploadFramingBytes) / 4 * 3
}

// List returns every manual of the signed-in user
func (s *ManualsService) List(ctx context.Context) ([]Manual, error) {
	var list manualList
	err := s.pipeline.Do(ctx, &client.Request{
		Operation: "manuals.list",
		Method:    http.MethodGet,
		Path:      "/manuals",
	}, &list)
	if err != nil {
		return nil, err
	}
	return list.Manuals, nil
}

// Get returns one manual
func (s *ManualsService) Get(ctx context.Context, id string) (*Manual, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	var manual Manual
	err := s.pipeline.Do(ctx, &client.Request{
		Operation: "manuals.get",
		Method:    http.MethodGet,
		Path:      utils.EndpointPath("manuals", id),
	}, &manual)
	if err != nil {
		return nil, err
	}
	return &manual, nil
}

// Delete removes a manual
func (s *ManualsService) Delete(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	return s.pipeline.Do(ctx, &client.Request{
		Operation: "manuals.delete",
		Method:    http.MethodDelete,
		Path:      utils.EndpointPath("manuals", id),
	}, nil)
}

// Upload asks the file selector for a document and uploads it. It returns
// nil, nil when the user cancels the selection.
func (s *ManualsService) Upload(ctx context.Context, opts UploadOptions) (*Manual, error) {
	if s.files == nil {
		return nil, internal.NewValidationError("file", "file selection is not available here").Classified()
	}

	sel, err := s.files.SelectFile(ctx, s.Constraints())
	if err != nil {
		return nil, err
	}
	if sel == nil {
		internal.LogDebug("Upload cancelled at file selection")
		return nil, nil
	}

	content, err := s.files.ReadAsBase64(sel.URI)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sel.Name, err)
	}

	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = strings.TrimSuffix(sel.Name, filepath.Ext(sel.Name))
	}

	internal.LogInfo("Uploading %s (%s)", sel.Name, internal.FormatBytes(sel.SizeBytes))

	var manual Manual
	err = s.pipeline.Do(ctx, &client.Request{
		Operation: "manuals.upload",
		Method:    http.MethodPost,
		Path:      "/manuals",
		Body: uploadRequest{
			FileName:      sel.Name,
			MIMEType:      sel.MIMEType,
			ContentBase64: content,
			Title:         title,
		},
		Timeout:  s.pipeline.UploadTimeout(),
		WrapBody: opts.WrapBody,
	}, &manual)
	if err != nil {
		return nil, err
	}
	return &manual, nil
}

// Page fetches one rendered page, numbered from 1
func (s *ManualsService) Page(ctx context.Context, id string, page int) (*PageImage, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	if page < 1 {
		return nil, internal.NewValidationErrorWithValue("page", "page numbers start at 1", page).Classified()
	}

	var img PageImage
	err := s.pipeline.Do(ctx, &client.Request{
		Operation: "manuals.page",
		Method:    http.MethodGet,
		Path:      utils.EndpointPath("manuals", id, "pages", strconv.Itoa(page)),
		Timeout:   s.pipeline.UploadTimeout(),
	}, &img)
	if err != nil {
		return nil, err
	}
	return &img, nil
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return internal.NewValidationError("id", "manual id is required").Classified()
	}
	return nil
}
