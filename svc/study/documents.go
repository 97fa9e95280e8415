package study

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/dmitrymomot/studykit/pkg/apperr"
	"github.com/dmitrymomot/studykit/pkg/extract"
	"github.com/dmitrymomot/studykit/pkg/logger"
	"github.com/dmitrymomot/studykit/pkg/search"
	"github.com/dmitrymomot/studykit/pkg/storage"
	"github.com/dmitrymomot/studykit/svc/quota"
	"github.com/dmitrymomot/studykit/svc/usage"
)

const (
	maxTitleLength = 255
	searchLimit    = 20
)

// Upload is an incoming document. Size is the size the client declared.
type Upload struct {
	Title       string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

var extensionTypes = map[string]string{
	".pdf":  extract.TypePDF,
	".docx": extract.TypeDOCX,
	".doc":  extract.TypeDOC,
	".txt":  extract.TypePlain,
	".md":   "text/markdown",
}

// UploadDocument stores the file and records a document. The document quota
// and the plan's file size limit are checked before anything is written.
func (s *Service) UploadDocument(ctx context.Context, owner quota.Subject, up Upload) (Document, error) {
	if up.Body == nil || up.Size <= 0 {
		return Document{}, apperr.Field("file", "No file was submitted.")
	}
	title := strings.TrimSpace(up.Title)
	if utf8.RuneCountInString(title) > maxTitleLength {
		return Document{}, apperr.Field("title", fmt.Sprintf("Ensure this field has no more than %d characters.", maxTitleLength))
	}

	if err := s.gate.RequireFileSize(owner, up.Size); err != nil {
		return Document{}, err
	}
	if err := s.gate.Require(ctx, owner, usage.Documents); err != nil {
		return Document{}, err
	}

	limit := s.gate.Catalog().LimitsFor(owner.Subscription, s.now()).MaxFileSizeBytes()
	data, err := io.ReadAll(io.LimitReader(up.Body, limit+1))
	if err != nil {
		return Document{}, fmt.Errorf("read upload: %w", err)
	}
	size := int64(len(data))
	if size == 0 {
		return Document{}, apperr.Field("file", "The submitted file is empty.")
	}
	if err := s.gate.RequireFileSize(owner, size); err != nil {
		return Document{}, err
	}

	fileName := displayName(up.FileName)
	if title == "" {
		title = strings.TrimSuffix(fileName, path.Ext(fileName))
	}
	contentType := detectContentType(up.ContentType, fileName, data)

	now := s.now().UTC()
	doc := Document{
		ID:         s.newID(),
		UserID:     owner.UserID,
		Title:      title,
		FileName:   fileName,
		FileSize:   size,
		FileType:   contentType,
		Pages:      extract.Pages(bytes.NewReader(data), size, contentType),
		UploadedAt: now,
		UpdatedAt:  now,
	}
	doc.StorageKey = storage.DocumentKey(owner.UserID, doc.ID, fileName)

	if err := s.blobs.Save(ctx, doc.StorageKey, bytes.NewReader(data), size, contentType); err != nil {
		return Document{}, fmt.Errorf("store document: %w", err)
	}

	err = s.commit(ctx, owner, []usage.Resource{usage.Documents}, func(st Store) error {
		return st.CreateDocument(ctx, doc)
	})
	if err != nil {
		if delErr := s.blobs.Delete(ctx, doc.StorageKey); delErr != nil {
			s.log.WarnContext(ctx, "failed to remove orphaned upload", logger.Error(delErr), slog.String("key", doc.StorageKey))
		}
		return Document{}, err
	}

	s.log.InfoContext(ctx, "document uploaded",
		logger.UserID(owner.UserID),
		slog.String("document_id", doc.ID),
		slog.Int64("size", size),
		slog.String("file_type", contentType),
	)

	if s.index != nil {
		s.indexDocument(ctx, doc, data)
	}
	return doc, nil
}

func (s *Service) indexDocument(ctx context.Context, doc Document, data []byte) {
	text, _ := extract.Text(ctx, bytes.NewReader(data), int64(len(data)), doc.FileType)
	err := s.index.Put(ctx, search.Document{
		ID:         doc.ID,
		UserID:     doc.UserID,
		Title:      doc.Title,
		Content:    text,
		UploadedAt: doc.UploadedAt,
	})
	if err != nil {
		s.log.WarnContext(ctx, "failed to index document", logger.Error(err), slog.String("document_id", doc.ID))
	}
}

func (s *Service) ListDocuments(ctx context.Context, userID string) ([]Document, error) {
	return s.store.ListDocuments(ctx, userID)
}

func (s *Service) GetDocument(ctx context.Context, userID, id string) (Document, error) {
	return s.store.GetDocument(ctx, userID, id)
}

// DeleteDocument removes the record, its blob and its index entry. Summaries
// and flashcards generated from it are removed with it.
func (s *Service) DeleteDocument(ctx context.Context, userID, id string) error {
	doc, err := s.store.GetDocument(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, userID, id); err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, doc.StorageKey); err != nil {
		s.log.WarnContext(ctx, "failed to delete document blob", logger.Error(err), slog.String("key", doc.StorageKey))
	}
	if s.index != nil {
		if err := s.index.Remove(ctx, doc.ID); err != nil {
			s.log.WarnContext(ctx, "failed to remove document from index", logger.Error(err), slog.String("document_id", doc.ID))
		}
	}
	return nil
}

// SearchDocuments runs a full-text query over the user's documents, best
// match first.
func (s *Service) SearchDocuments(ctx context.Context, userID, q string) ([]Document, error) {
	if s.index == nil {
		return nil, ErrSearchDisabled
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperr.Field("q", "This field is required.")
	}

	hits, err := s.index.Query(ctx, userID, q, searchLimit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []Document{}, nil
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	docs, err := s.store.DocumentsByIDs(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	out := make([]Document, 0, len(docs))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// documentText loads the blob and extracts its text. A document without
// usable text is a validation failure, not a server error.
func (s *Service) documentText(ctx context.Context, doc Document) (string, error) {
	rc, err := s.blobs.Open(ctx, doc.StorageKey)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}

	text, ok := extract.Text(ctx, bytes.NewReader(data), int64(len(data)), doc.FileType)
	if !ok {
		return "", apperr.Field("document", "Could not extract text from document.")
	}
	return text, nil
}

// displayName keeps the client's base file name for display. Storage keys
// are sanitized separately.
func displayName(name string) string {
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return "document"
	}
	return name
}

func detectContentType(declared, fileName string, data []byte) string {
	if ct := mediaType(declared); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	ext := strings.ToLower(path.Ext(fileName))
	if ct, ok := extensionTypes[ext]; ok {
		return ct
	}
	if ct := mediaType(mime.TypeByExtension(ext)); ct != "" {
		return ct
	}
	return mediaType(http.DetectContentType(data))
}

func mediaType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mt
}
