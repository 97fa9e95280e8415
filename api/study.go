package api

import (
	"encoding/json"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/studykit/handler"
	"github.com/dmitrymomot/studykit/pkg/apperr"
	"github.com/dmitrymomot/studykit/svc/study"
)

type idRequest struct {
	ID string `path:"id"`
}

// validID rejects malformed path ids before they reach storage.
func validID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errNotFound
	}
	return nil
}

type uploadRequest struct {
	Title string                `form:"title"`
	File  *multipart.FileHeader `file:"file"`
}

type searchRequest struct {
	Q string `query:"q"`
}

type generateCardsRequest struct {
	ID       string   `path:"id" json:"-"`
	NumCards looseInt `json:"num_cards"`
}

type flashcardListRequest struct {
	Category string `query:"category"`
	Document string `query:"document"`
}

type flashcardUpdateRequest struct {
	ID string `path:"id" json:"-"`
	study.FlashcardUpdate
}

type reviewRequest struct {
	ID           string   `path:"id" json:"-"`
	MasteryLevel looseInt `json:"mastery_level"`
}

func (h *Handlers) dashboardStats(ctx handler.Context, _ struct{}) handler.Response {
	stats, err := h.Study.Stats(ctx, currentUser(ctx).ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(stats)
}

func (h *Handlers) usage(ctx handler.Context, _ struct{}) handler.Response {
	snap, err := h.Gate.Snapshot(ctx, subject(ctx))
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(snap, handler.WithHeader("Cache-Control", "no-store"))
}

func (h *Handlers) listDocuments(ctx handler.Context, _ struct{}) handler.Response {
	docs, err := h.Study.ListDocuments(ctx, currentUser(ctx).ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(docs)
}

func (h *Handlers) uploadDocument(ctx handler.Context, req uploadRequest) handler.Response {
	if req.File == nil {
		return handler.Fail(apperr.Field("file", "No file was submitted."))
	}
	f, err := req.File.Open()
	if err != nil {
		return handler.Fail(err)
	}
	defer f.Close()

	doc, err := h.Study.UploadDocument(ctx, subject(ctx), study.Upload{
		Title:       req.Title,
		FileName:    req.File.Filename,
		ContentType: req.File.Header.Get("Content-Type"),
		Size:        req.File.Size,
		Body:        f,
	})
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(doc, handler.WithStatus(http.StatusCreated))
}

func (h *Handlers) searchDocuments(ctx handler.Context, req searchRequest) handler.Response {
	docs, err := h.Study.SearchDocuments(ctx, currentUser(ctx).ID, req.Q)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(docs)
}

func (h *Handlers) getDocument(ctx handler.Context, req idRequest) handler.Response {
	if err := validID(req.ID); err != nil {
		return handler.Fail(err)
	}
	doc, err := h.Study.GetDocument(ctx, currentUser(ctx).ID, req.ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(doc)
}

func (h *Handlers) deleteDocument(ctx handler.Context, req idRequest) handler.Response {
	if err := validID(req.ID); err != nil {
		return handler.Fail(err)
	}
	if err := h.Study.DeleteDocument(ctx, currentUser(ctx).ID, req.ID); err != nil {
		return handler.Fail(err)
	}
	return handler.Empty()
}

func (h *Handlers) generateSummary(ctx handler.Context, req idRequest) handler.Response {
	if err := validID(req.ID); err != nil {
		return handler.Fail(err)
	}
	sum, err := h.Study.GenerateSummary(ctx, subject(ctx), req.ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(sum, handler.WithStatus(http.StatusCreated))
}

func (h *Handlers) generateFlashcards(ctx handler.Context, req generateCardsRequest) handler.Response {
	if err := validID(req.ID); err != nil {
		return handler.Fail(err)
	}
	cards, err := h.Study.GenerateFlashcards(ctx, subject(ctx), req.ID, req.NumCards.value)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(cards, handler.WithStatus(http.StatusCreated))
}

func (h *Handlers) listSummaries(ctx handler.Context, _ struct{}) handler.Response {
	sums, err := h.Study.ListSummaries(ctx, currentUser(ctx).ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(sums)
}

func (h *Handlers) getSummary(ctx handler.Context, req idRequest) handler.Response {
	if err := validID(req.ID); err != nil {
		return handler.Fail(err)
	}
	sum, err := h.Study.GetSummary(ctx, currentUser(ctx).ID, req.ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(sum)
}

func (h *Handlers) deleteSummary(ctx handler.Context, req idRequest) handler.Response {
	if err := validID(req.ID); err != nil {
		return handler.Fail(err)
	}
	if err := h.Study.DeleteSummary(ctx, currentUser(ctx).ID, req.ID); err != nil {
		return handler.Fail(err)
	}
	return handler.Empty()
}

func (h *Handlers) generateFlashcardsFromSummary(ctx handler.Context, req generateCardsRequest) handler.Response {
	if err := validID(req.ID); err != nil {
		return handler.Fail(err)
	}
	cards, err := h.Study.GenerateFlashcardsFromSummary(ctx, subject(ctx), req.ID, req.NumCards.value)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(cards, handler.WithStatus(http.StatusCreated))
}

func (h *Handlers) listFlashcards(ctx handler.Context, req flashcardListRequest) handler.Response {
	if req.Document != "" {
		if _, err := uuid.Parse(req.Document); err != nil {
			return handler.JSON([]study.Flashcard{})
		}
	}
	cards, err := h.Study.ListFlashcards(ctx, currentUser(ctx).ID, study.FlashcardFilter{
		Category:   req.Category,
		DocumentID: req.Document,
	})
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(cards)
}

func (h *Handlers) createFlashcard(ctx handler.Context, req study.ManualFlashcard) handler.Response {
	if req.DocumentID != nil {
		if err := validID(*req.DocumentID); err != nil {
			return handler.Fail(study.ErrDocumentNotFound)
		}
	}
	card, err := h.Study.CreateFlashcard(ctx, subject(ctx), req)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(card, handler.WithStatus(http.StatusCreated))
}

func (h *Handlers) getFlashcard(ctx handler.Context, req idRequest) handler.Response {
	if err := validID(req.ID); err != nil {
		return handler.Fail(err)
	}
	card, err := h.Study.GetFlashcard(ctx, currentUser(ctx).ID, req.ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(card)
}

func (h *Handlers) updateFlashcard(ctx handler.Context, req flashcardUpdateRequest) handler.Response {
	if err := validID(req.ID); err != nil {
		return handler.Fail(err)
	}
	card, err := h.Study.UpdateFlashcard(ctx, currentUser(ctx).ID, req.ID, req.FlashcardUpdate)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(card)
}

func (h *Handlers) deleteFlashcard(ctx handler.Context, req idRequest) handler.Response {
	if err := validID(req.ID); err != nil {
		return handler.Fail(err)
	}
	if err := h.Study.DeleteFlashcard(ctx, currentUser(ctx).ID, req.ID); err != nil {
		return handler.Fail(err)
	}
	return handler.Empty()
}

func (h *Handlers) reviewFlashcard(ctx handler.Context, req reviewRequest) handler.Response {
	if err := validID(req.ID); err != nil {
		return handler.Fail(err)
	}
	card, err := h.Study.ReviewFlashcard(ctx, currentUser(ctx).ID, req.ID, req.MasteryLevel.ptr())
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(card)
}

// looseInt accepts a JSON number or a numeric string. Anything else leaves
// it unset instead of failing the request.
type looseInt struct {
	value int
	set   bool
}

func (n *looseInt) UnmarshalJSON(b []byte) error {
	*n = looseInt{}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch v := v.(type) {
	case float64:
		if !math.IsNaN(v) && !math.IsInf(v, 0) && math.Abs(v) < math.MaxInt32 {
			*n = looseInt{value: int(v), set: true}
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*n = looseInt{value: i, set: true}
		}
	}
	return nil
}

func (n looseInt) ptr() *int {
	if !n.set {
		return nil
	}
	v := n.value
	return &v
}
