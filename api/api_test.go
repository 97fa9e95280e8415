package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/studykit/api"
	"github.com/dmitrymomot/studykit/pkg/ai"
	"github.com/dmitrymomot/studykit/pkg/jwt"
	"github.com/dmitrymomot/studykit/pkg/ratelimit"
	"github.com/dmitrymomot/studykit/pkg/storage"
	"github.com/dmitrymomot/studykit/svc/account"
	"github.com/dmitrymomot/studykit/svc/billing"
	"github.com/dmitrymomot/studykit/svc/plan"
	"github.com/dmitrymomot/studykit/svc/quota"
	"github.com/dmitrymomot/studykit/svc/study"
)

const password = "correct-horse-battery"

type stubGenerator struct{}

func (stubGenerator) Summarize(_ context.Context, text string) (ai.Summary, error) {
	return ai.Summary{FullSummary: "about " + text, KeyPoints: []string{"point"}}, nil
}

func (stubGenerator) Flashcards(_ context.Context, _ string, n int) ([]ai.Flashcard, error) {
	out := make([]ai.Flashcard, 0, n)
	for i := range n {
		out = append(out, ai.Flashcard{Question: fmt.Sprintf("q%d", i), Answer: fmt.Sprintf("a%d", i)})
	}
	return out, nil
}

type testServer struct {
	*httptest.Server
}

func newServer(t *testing.T, opts ...func(*api.Deps)) *testServer {
	t.Helper()

	accounts := account.NewMemoryStore()
	tokens, err := jwt.New(jwt.Config{
		SigningKey: strings.Repeat("k", 32),
		Issuer:     "test",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	})
	require.NoError(t, err)

	content := study.NewMemoryStore()
	gate := quota.NewGate(plan.DefaultCatalog(), content)

	deps := api.Deps{
		JWT:      tokens,
		Accounts: account.NewService(accounts, account.WithBcryptCost(4)),
		Gate:     gate,
		Study:    study.NewService(content, gate, storage.NewMemoryStorage(), stubGenerator{}),
		Billing:  billing.NewService(nil, nil, nil, billing.Config{}),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	srv := httptest.NewServer(api.NewHandlers(deps).Router())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func (s *testServer) upload(t *testing.T, token, name, text string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", name))
	fw, err := mw.CreateFormFile("file", name+".txt")
	require.NoError(t, err)
	_, err = io.WriteString(fw, text)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/documents", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return s.send(t, req)
}

// register signs up a user and returns its id with both tokens.
func (s *testServer) register(t *testing.T, email string) (string, string, string) {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":            email,
		"username":         strings.Split(email, "@")[0],
		"password":         password,
		"password_confirm": password,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	user := body["user"].(map[string]any)
	tokens := body["tokens"].(map[string]any)
	return user["id"].(string), tokens["access"].(string), tokens["refresh"].(string)
}

func errorCode(body map[string]any) string {
	detail, _ := body["error"].(map[string]any)
	code, _ := detail["code"].(string)
	return code
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	_, access, refresh := s.register(t, "ada@example.com")

	t.Run("profile", func(t *testing.T) {
		resp, body := s.do(t, http.MethodGet, "/api/auth/profile", access, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ada@example.com", body["email"])
		assert.Equal(t, "free", body["plan_tier"])
		assert.Equal(t, "active", body["subscription_status"])
	})

	t.Run("update profile", func(t *testing.T) {
		resp, body := s.do(t, http.MethodPatch, "/api/auth/profile", access, map[string]string{"first_name": "Ada"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Ada", body["first_name"])
	})

	t.Run("login", func(t *testing.T) {
		resp, body := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ADA@example.com", "password": password})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "tokens")
	})

	t.Run("wrong password", func(t *testing.T) {
		resp, _ := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "nope-nope-nope"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("refresh", func(t *testing.T) {
		resp, body := s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh": refresh})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "tokens")
	})

	t.Run("access token cannot refresh", func(t *testing.T) {
		resp, body := s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh": access})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "token_not_valid", errorCode(body))
	})

	t.Run("refresh token cannot authenticate", func(t *testing.T) {
		resp, _ := s.do(t, http.MethodGet, "/api/auth/profile", refresh, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	s := newServer(t)

	resp, body := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":            "not-an-email",
		"username":         "x",
		"password":         password,
		"password_confirm": "different-password",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "password")
}

func TestRequiresAuthentication(t *testing.T) {
	t.Parallel()
	s := newServer(t)

	for _, path := range []string{"/api/documents", "/api/usage", "/api/admin/users"} {
		resp, body := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		assert.Equal(t, "unauthorized", errorCode(body), path)
	}
}

func TestDocumentQuota(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	_, access, _ := s.register(t, "bob@example.com")

	for i := range 10 {
		resp, body := s.upload(t, access, fmt.Sprintf("notes-%d", i), "some study text")
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "text/plain", body["file_type"])
	}

	resp, body := s.upload(t, access, "one-too-many", "more text")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "quota_exceeded", errorCode(body))
	detail := body["error"].(map[string]any)
	assert.Equal(t, "documents", detail["resource"])
	assert.EqualValues(t, 10, detail["limit"])

	resp, body = s.do(t, http.MethodGet, "/api/usage", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(t, false, body["is_pro"])
	docs := body["usage"].(map[string]any)["documents"].(map[string]any)
	assert.EqualValues(t, 10, docs["used"])
	assert.EqualValues(t, 0, docs["remaining"])
}

func TestStudyFlow(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	_, access, _ := s.register(t, "cy@example.com")

	resp, doc := s.upload(t, access, "biology", "cells divide by mitosis")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	docID := doc["id"].(string)

	resp, sum := s.do(t, http.MethodPost, "/api/documents/"+docID+"/generate-summary", access, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, docID, sum["document"])

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/documents/"+docID+"/generate-flashcards", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, _ = s.send(t, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/api/documents/"+docID+"/generate-flashcards", access, map[string]int{"num_cards": 3})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, card := s.do(t, http.MethodPost, "/api/flashcards", access, map[string]string{"question": "Q?", "answer": "A."})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, study.DefaultCategory, card["category"])
	assert.Nil(t, card["document"])

	resp, reviewed := s.do(t, http.MethodPost, "/api/flashcards/"+card["id"].(string)+"/review", access, map[string]int{"mastery_level": 150})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 100, reviewed["mastery_level"])
	assert.EqualValues(t, 1, reviewed["review_count"])

	resp, stats := s.do(t, http.MethodGet, "/api/dashboard/stats", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, stats["documents_count"])
	assert.EqualValues(t, 1, stats["summaries_count"])
	assert.EqualValues(t, 14, stats["flashcards_count"])

	// The manual card is not an AI generation.
	resp, snap := s.do(t, http.MethodGet, "/api/usage", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	gens := snap["usage"].(map[string]any)["ai_generations"].(map[string]any)
	assert.EqualValues(t, 14, gens["used"])

	resp, _ = s.do(t, http.MethodDelete, "/api/documents/"+docID, access, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = s.do(t, http.MethodGet, "/api/summaries/"+sum["id"].(string), access, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLenientNumericFields(t *testing.T) {
	t.Parallel()
	s := newServer(t)

	generated := func(t *testing.T, access string) any {
		t.Helper()
		resp, snap := s.do(t, http.MethodGet, "/api/usage", access, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		return snap["usage"].(map[string]any)["ai_generations"].(map[string]any)["used"]
	}

	cardTests := []struct {
		name     string
		body     any
		wantUsed int
	}{
		{"non-numeric string falls back", map[string]string{"num_cards": "abc"}, 10},
		{"numeric string", map[string]string{"num_cards": "5"}, 5},
		{"out of range", map[string]int{"num_cards": 99}, 10},
		{"null", map[string]any{"num_cards": nil}, 10},
		{"fractional", map[string]float64{"num_cards": 4.0}, 4},
	}
	for i, tt := range cardTests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, access, _ := s.register(t, fmt.Sprintf("cards%d@example.com", i))
			resp, doc := s.upload(t, access, "notes", "plants make sugar")
			require.Equal(t, http.StatusCreated, resp.StatusCode)

			resp, body := s.do(t, http.MethodPost, "/api/documents/"+doc["id"].(string)+"/generate-flashcards", access, tt.body)
			require.Equal(t, http.StatusCreated, resp.StatusCode, body)
			assert.EqualValues(t, tt.wantUsed, generated(t, access))
		})
	}

	_, access, _ := s.register(t, "mastery@example.com")
	resp, card := s.do(t, http.MethodPost, "/api/flashcards", access, map[string]string{"question": "Q?", "answer": "A."})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	path := "/api/flashcards/" + card["id"].(string) + "/review"

	resp, reviewed := s.do(t, http.MethodPost, path, access, map[string]string{"mastery_level": "70"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 70, reviewed["mastery_level"])

	resp, reviewed = s.do(t, http.MethodPost, path, access, map[string]string{"mastery_level": "abc"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 70, reviewed["mastery_level"])
	assert.EqualValues(t, 2, reviewed["review_count"])

	resp, body := s.do(t, http.MethodPost, path, access, map[string]bool{"mastery_level": true})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.EqualValues(t, 70, body["mastery_level"])
	assert.EqualValues(t, 3, body["review_count"])
}

func TestOwnershipAndMalformedIDs(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	_, owner, _ := s.register(t, "dee@example.com")
	_, other, _ := s.register(t, "eve@example.com")

	resp, doc := s.upload(t, owner, "private", "secret notes")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := s.do(t, http.MethodGet, "/api/documents/"+doc["id"].(string), other, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(body))

	resp, _ = s.do(t, http.MethodGet, "/api/documents/not-a-uuid", owner, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminRequiresStaff(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	_, access, _ := s.register(t, "fay@example.com")

	resp, body := s.do(t, http.MethodGet, "/api/admin/dashboard/stats", access, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", errorCode(body))
}

func TestBillingDisabled(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	_, access, _ := s.register(t, "gus@example.com")

	resp, body := s.do(t, http.MethodPost, "/api/billing/checkout", access, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "service_unavailable", errorCode(body))

	resp, _ = s.do(t, http.MethodPost, "/api/billing/webhook", "", map[string]string{"type": "anything"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s := newServer(t)

	resp, _ := s.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthThrottling(t *testing.T) {
	t.Parallel()
	limiter, err := ratelimit.New(ratelimit.NewMemoryStore(), 2, time.Minute)
	require.NoError(t, err)
	s := newServer(t, func(d *api.Deps) { d.AuthLimiter = limiter })

	creds := map[string]string{"email": "nobody@example.com", "password": password}
	for range 2 {
		resp, _ := s.do(t, http.MethodPost, "/api/auth/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp, body := s.do(t, http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "throttled", errorCode(body))
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}
