package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/studykit/pkg/pg"
	"github.com/dmitrymomot/studykit/svc/account"
)

type PGStore struct {
	db pg.DBTX
}

func NewPGStore(db pg.DBTX) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Dashboard(ctx context.Context, since time.Time) (DashboardStats, error) {
	var d DashboardStats
	err := s.db.QueryRow(ctx, `
SELECT
	(SELECT count(*) FROM users),
	(SELECT count(*) FROM users WHERE created_at >= $1),
	(SELECT count(*) FROM documents),
	(SELECT count(*) FROM documents WHERE created_at >= $1),
	(SELECT count(*) FROM summaries),
	(SELECT count(*) FROM summaries WHERE created_at >= $1),
	(SELECT count(*) FROM flashcards),
	(SELECT count(*) FROM flashcards WHERE created_at >= $1)`, since,
	).Scan(
		&d.Users.Total, &d.Users.Recent,
		&d.Documents.Total, &d.Documents.Recent,
		&d.Summaries.Total, &d.Summaries.Recent,
		&d.Flashcards.Total, &d.Flashcards.Recent,
	)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("admin dashboard: %w", err)
	}
	return d, nil
}

func (s *PGStore) ContentStats(ctx context.Context, topN int) (ContentStats, error) {
	var (
		cs  ContentStats
		err error
	)
	if cs.DocumentsByType, err = s.buckets(ctx,
		`SELECT file_type, count(*) FROM documents GROUP BY file_type ORDER BY count(*) DESC, file_type`); err != nil {
		return ContentStats{}, fmt.Errorf("documents by type: %w", err)
	}
	if cs.FlashcardsByCategory, err = s.buckets(ctx,
		`SELECT category, count(*) FROM flashcards GROUP BY category ORDER BY count(*) DESC, category`); err != nil {
		return ContentStats{}, fmt.Errorf("flashcards by category: %w", err)
	}
	if err = s.db.QueryRow(ctx,
		`SELECT coalesce(round(avg(mastery_level)::numeric, 2), 0)::float8 FROM flashcards`,
	).Scan(&cs.AverageMastery); err != nil {
		return ContentStats{}, fmt.Errorf("average mastery: %w", err)
	}
	if cs.TopByDocuments, err = s.topUsers(ctx, "documents", topN); err != nil {
		return ContentStats{}, err
	}
	if cs.TopByFlashcards, err = s.topUsers(ctx, "flashcards", topN); err != nil {
		return ContentStats{}, err
	}
	return cs, nil
}

func (s *PGStore) buckets(ctx context.Context, query string) ([]Bucket, error) {
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Bucket, error) {
		var b Bucket
		err := row.Scan(&b.Key, &b.Count)
		return b, err
	})
}

// topUsers ranks users by rows in table. table is one of the fixed content
// table names, never user input.
func (s *PGStore) topUsers(ctx context.Context, table string, limit int) ([]UserCount, error) {
	rows, err := s.db.Query(ctx, `
SELECT u.id, u.email, count(*)
FROM users u
JOIN `+table+` c ON c.user_id = u.id
GROUP BY u.id, u.email
ORDER BY count(*) DESC, u.email
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top users by %s: %w", table, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (UserCount, error) {
		var uc UserCount
		err := row.Scan(&uc.UserID, &uc.Email, &uc.Count)
		return uc, err
	})
}

const userSearchFilter = `($1 = '' OR email ILIKE $2 OR username ILIKE $2 OR first_name ILIKE $2 OR last_name ILIKE $2)`

func (s *PGStore) ListUsers(ctx context.Context, search string, limit, offset int) ([]account.User, int64, error) {
	pattern := "%" + escapeLike(search) + "%"

	var total int64
	if err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM users WHERE `+userSearchFilter, search, pattern,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := s.db.Query(ctx, `
SELECT `+account.UserColumns+`
FROM users
WHERE `+userSearchFilter+`
ORDER BY created_at DESC, id
LIMIT $3 OFFSET $4`, search, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []account.User{}
	for rows.Next() {
		u, err := account.ScanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

func (s *PGStore) GetUser(ctx context.Context, id string) (account.User, error) {
	u, err := account.ScanUser(s.db.QueryRow(ctx, `SELECT `+account.UserColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			return account.User{}, ErrUserNotFound
		}
		return account.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PGStore) UpdateUser(ctx context.Context, id string, u UserUpdate, at time.Time) (account.User, error) {
	user, err := account.ScanUser(s.db.QueryRow(ctx, `
UPDATE users SET
	username = coalesce($2, username),
	first_name = coalesce($3, first_name),
	last_name = coalesce($4, last_name),
	is_admin = coalesce($5, is_admin),
	updated_at = $6
WHERE id = $1
RETURNING `+account.UserColumns, id, u.Username, u.FirstName, u.LastName, u.IsAdmin, at))
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			return account.User{}, ErrUserNotFound
		}
		return account.User{}, errors.Join(ErrFailedToUpdate, err)
	}
	return user, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
