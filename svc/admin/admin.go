// Package admin backs the staff console: platform counters, user management
// and content statistics. Plan changes made here go through the subscription
// state machine like any billing event.
package admin

import (
	"time"

	"github.com/dmitrymomot/studykit/pkg/audit"
	"github.com/dmitrymomot/studykit/svc/account"
	"github.com/dmitrymomot/studykit/svc/plan"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	// RecentWindow bounds the "recent" counters on the dashboard.
	RecentWindow = 30 * 24 * time.Hour

	topUsersLimit = 10
	historyLimit  = 50
)

// Counter is a total with the part created inside RecentWindow.
type Counter struct {
	Total  int64 `json:"total"`
	Recent int64 `json:"recent"`
}

type DashboardStats struct {
	Users      Counter `json:"users"`
	Documents  Counter `json:"documents"`
	Summaries  Counter `json:"summaries"`
	Flashcards Counter `json:"flashcards"`
}

// Bucket is one group of a count breakdown.
type Bucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// UserCount ranks a user by the number of records they own.
type UserCount struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Count  int64  `json:"count"`
}

type ContentStats struct {
	DocumentsByType      []Bucket    `json:"documents_by_type"`
	FlashcardsByCategory []Bucket    `json:"flashcards_by_category"`
	AverageMastery       float64     `json:"average_mastery"`
	TopByDocuments       []UserCount `json:"top_users_by_documents"`
	TopByFlashcards      []UserCount `json:"top_users_by_flashcards"`
}

// UserQuery selects a page of users. Page is 1-based.
type UserQuery struct {
	Search   string
	Page     int
	PageSize int
}

// normalize applies the paging defaults.
func (q UserQuery) normalize() UserQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	q.PageSize = min(q.PageSize, MaxPageSize)
	return q
}

type UserPage struct {
	Count    int64          `json:"count"`
	Page     int            `json:"-"`
	PageSize int            `json:"-"`
	Results  []account.User `json:"results"`
}

func (p UserPage) HasNext() bool {
	return int64(p.Page*p.PageSize) < p.Count
}

func (p UserPage) HasPrevious() bool {
	return p.Page > 1
}

// UserDetail is a user with the recent audit history of their account.
type UserDetail struct {
	account.User
	History []audit.Event `json:"history"`
}

// UserUpdate holds the fields an admin may change. Nil fields are unchanged.
type UserUpdate struct {
	Username  *string    `json:"username"`
	FirstName *string    `json:"first_name"`
	LastName  *string    `json:"last_name"`
	IsAdmin   *bool      `json:"is_admin"`
	PlanTier  *plan.Tier `json:"plan_tier"`
}

func (u UserUpdate) profileChanged() bool {
	return u.Username != nil || u.FirstName != nil || u.LastName != nil || u.IsAdmin != nil
}
