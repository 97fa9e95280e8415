package study

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/studykit/pkg/pg"
	"github.com/dmitrymomot/studykit/svc/usage"
)

const (
	documentColumns  = `id, user_id, title, storage_key, file_name, file_size, file_type, pages, created_at, updated_at`
	summaryColumns   = `id, user_id, document_id, full_summary, key_points, created_at, updated_at`
	flashcardColumns = `id, user_id, document_id, summary_id, question, answer, category, last_reviewed,
	review_count, mastery_level, created_at, updated_at`
)

// Pool is satisfied by *pgxpool.Pool.
type Pool interface {
	pg.DBTX
	pg.TxBeginner
}

type PGStore struct {
	db pg.DBTX
	// beginner is nil when db is already a transaction.
	beginner pg.TxBeginner
}

func NewPGStore(pool Pool) *PGStore {
	return &PGStore{db: pool, beginner: pool}
}

func (s *PGStore) InUserTx(ctx context.Context, userID string, fn func(st Store, counter usage.Counter) error) error {
	if s.beginner == nil {
		return fn(s, usage.NewPGCounter(s.db))
	}
	return pg.WithTx(ctx, s.beginner, func(tx pgx.Tx) error {
		if err := pg.LockUser(ctx, tx, userID); err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		return fn(&PGStore{db: tx}, usage.NewPGCounter(tx))
	})
}

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.UserID, &d.Title, &d.StorageKey, &d.FileName, &d.FileSize, &d.FileType,
		&d.Pages, &d.UploadedAt, &d.UpdatedAt)
	return d, err
}

func (s *PGStore) CreateDocument(ctx context.Context, d Document) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.UserID, d.Title, d.StorageKey, d.FileName, d.FileSize, d.FileType, d.Pages, d.UploadedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PGStore) ListDocuments(ctx context.Context, userID string) ([]Document, error) {
	rows, err := s.db.Query(ctx, `SELECT `+documentColumns+` FROM documents WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return collect(rows, scanDocument)
}

func (s *PGStore) GetDocument(ctx context.Context, userID, id string) (Document, error) {
	d, err := scanDocument(s.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return Document{}, ErrDocumentNotFound
		}
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (s *PGStore) DocumentsByIDs(ctx context.Context, userID string, ids []string) ([]Document, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE user_id = $1 AND id = ANY($2::text[]::uuid[])`, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("documents by ids: %w", err)
	}
	return collect(rows, scanDocument)
}

func (s *PGStore) DeleteDocument(ctx context.Context, userID, id string) error {
	return s.delete(ctx, `DELETE FROM documents WHERE id = $1 AND user_id = $2`, userID, id, ErrDocumentNotFound)
}

func scanSummary(row pgx.Row) (Summary, error) {
	var (
		sum Summary
		kp  []byte
	)
	if err := row.Scan(&sum.ID, &sum.UserID, &sum.DocumentID, &sum.FullSummary, &kp, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
		return Summary{}, err
	}
	sum.KeyPoints = []string{}
	if len(kp) > 0 {
		if err := json.Unmarshal(kp, &sum.KeyPoints); err != nil {
			return Summary{}, fmt.Errorf("decode key points: %w", err)
		}
	}
	return sum, nil
}

func (s *PGStore) CreateSummary(ctx context.Context, sum Summary) error {
	kp, err := json.Marshal(sum.KeyPoints)
	if err != nil {
		return fmt.Errorf("encode key points: %w", err)
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO summaries (`+summaryColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sum.ID, sum.UserID, sum.DocumentID, sum.FullSummary, kp, sum.CreatedAt, sum.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

func (s *PGStore) ListSummaries(ctx context.Context, userID string) ([]Summary, error) {
	rows, err := s.db.Query(ctx, `SELECT `+summaryColumns+` FROM summaries WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	return collect(rows, scanSummary)
}

func (s *PGStore) GetSummary(ctx context.Context, userID, id string) (Summary, error) {
	sum, err := scanSummary(s.db.QueryRow(ctx,
		`SELECT `+summaryColumns+` FROM summaries WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return Summary{}, ErrSummaryNotFound
		}
		return Summary{}, fmt.Errorf("get summary: %w", err)
	}
	return sum, nil
}

func (s *PGStore) DeleteSummary(ctx context.Context, userID, id string) error {
	return s.delete(ctx, `DELETE FROM summaries WHERE id = $1 AND user_id = $2`, userID, id, ErrSummaryNotFound)
}

func scanFlashcard(row pgx.Row) (Flashcard, error) {
	var f Flashcard
	err := row.Scan(&f.ID, &f.UserID, &f.DocumentID, &f.SummaryID, &f.Question, &f.Answer, &f.Category,
		&f.LastReviewed, &f.ReviewCount, &f.MasteryLevel, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func (s *PGStore) CreateFlashcards(ctx context.Context, cards []Flashcard) error {
	insert := func(db pg.DBTX) error {
		for _, c := range cards {
			_, err := db.Exec(ctx, `
INSERT INTO flashcards (`+flashcardColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				c.ID, c.UserID, c.DocumentID, c.SummaryID, c.Question, c.Answer, c.Category,
				c.LastReviewed, c.ReviewCount, c.MasteryLevel, c.CreatedAt, c.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert flashcard: %w", err)
			}
		}
		return nil
	}

	if s.beginner == nil {
		return insert(s.db)
	}
	return pg.WithTx(ctx, s.beginner, func(tx pgx.Tx) error {
		return insert(tx)
	})
}

func (s *PGStore) ListFlashcards(ctx context.Context, userID string, f FlashcardFilter) ([]Flashcard, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+flashcardColumns+` FROM flashcards
WHERE user_id = $1
	AND ($2::text = '' OR category = $2)
	AND ($3::text = '' OR document_id::text = $3)
ORDER BY created_at DESC`, userID, f.Category, f.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("list flashcards: %w", err)
	}
	return collect(rows, scanFlashcard)
}

func (s *PGStore) GetFlashcard(ctx context.Context, userID, id string) (Flashcard, error) {
	return s.flashcardRow(ctx, "get flashcard", `SELECT `+flashcardColumns+` FROM flashcards WHERE id = $1 AND user_id = $2`, id, userID)
}

func (s *PGStore) UpdateFlashcard(ctx context.Context, userID, id string, u FlashcardUpdate, at time.Time) (Flashcard, error) {
	return s.flashcardRow(ctx, "update flashcard", `
UPDATE flashcards SET
	question = coalesce($3, question),
	answer = coalesce($4, answer),
	category = coalesce($5, category),
	updated_at = $6
WHERE id = $1 AND user_id = $2
RETURNING `+flashcardColumns, id, userID, u.Question, u.Answer, u.Category, at)
}

func (s *PGStore) ReviewFlashcard(ctx context.Context, userID, id string, mastery *int, at time.Time) (Flashcard, error) {
	return s.flashcardRow(ctx, "review flashcard", `
UPDATE flashcards SET
	review_count = review_count + 1,
	last_reviewed = $3,
	mastery_level = coalesce($4::int, mastery_level),
	updated_at = $3
WHERE id = $1 AND user_id = $2
RETURNING `+flashcardColumns, id, userID, at, mastery)
}

func (s *PGStore) DeleteFlashcard(ctx context.Context, userID, id string) error {
	return s.delete(ctx, `DELETE FROM flashcards WHERE id = $1 AND user_id = $2`, userID, id, ErrFlashcardNotFound)
}

func (s *PGStore) flashcardRow(ctx context.Context, op, query string, args ...any) (Flashcard, error) {
	f, err := scanFlashcard(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return Flashcard{}, ErrFlashcardNotFound
		}
		return Flashcard{}, fmt.Errorf("%s: %w", op, err)
	}
	return f, nil
}

func (s *PGStore) Stats(ctx context.Context, userID string) (Stats, error) {
	var (
		st      Stats
		mastery float64
	)
	err := s.db.QueryRow(ctx, `
SELECT
	(SELECT count(*) FROM documents WHERE user_id = $1),
	(SELECT count(*) FROM flashcards WHERE user_id = $1),
	(SELECT count(*) FROM summaries WHERE user_id = $1),
	(SELECT coalesce(avg(mastery_level), 0)::float8 FROM flashcards WHERE user_id = $1)`, userID,
	).Scan(&st.DocumentsCount, &st.FlashcardsCount, &st.SummariesCount, &mastery)
	if err != nil {
		return Stats{}, fmt.Errorf("study stats: %w", err)
	}
	st.Mastery = int(mastery)
	st.StudyTime = studyTime
	return st, nil
}

func (s *PGStore) delete(ctx context.Context, query, userID, id string, notFound error) error {
	tag, err := s.db.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
