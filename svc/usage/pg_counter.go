package usage

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrymomot/studykit/pkg/pg"
)

const (
	countDocumentsSQL  = `SELECT count(*) FROM documents WHERE user_id = $1 AND created_at >= $2`
	countSummariesSQL  = `SELECT count(*) FROM summaries WHERE user_id = $1 AND created_at >= $2`
	countFlashcardsSQL = `SELECT count(*) FROM flashcards WHERE user_id = $1 AND created_at >= $2`

	// AI generations are summaries plus flashcards tied to a document.
	countAIGenerationsSQL = `
SELECT
	(SELECT count(*) FROM summaries WHERE user_id = $1 AND created_at >= $2) +
	(SELECT count(*) FROM flashcards WHERE user_id = $1 AND created_at >= $2 AND document_id IS NOT NULL)`
)

var countQueries = map[Resource]string{
	Documents:     countDocumentsSQL,
	Summaries:     countSummariesSQL,
	Flashcards:    countFlashcardsSQL,
	AIGenerations: countAIGenerationsSQL,
}

// PGCounter counts rows in Postgres. Pass a pool, or a transaction when the
// count must see uncommitted rows.
type PGCounter struct {
	db pg.DBTX
}

func NewPGCounter(db pg.DBTX) *PGCounter {
	return &PGCounter{db: db}
}

func (c *PGCounter) CountSince(ctx context.Context, userID string, r Resource, since time.Time) (int64, error) {
	query, ok := countQueries[r]
	if !ok {
		return 0, unknownResource(r)
	}

	var n int64
	if err := c.db.QueryRow(ctx, query, userID, since).Scan(&n); err != nil {
		return 0, errors.Join(ErrFailedToCountUsage, err)
	}
	return n, nil
}
