package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"quizzr-service/internal/app"
	"quizzr-service/internal/domain"
	"quizzr-service/internal/infra/memory"
	"quizzr-service/internal/report"
)

type fakeVerifier map[string]string

func (v fakeVerifier) Verify(token string) (string, error) {
	if userID, ok := v[token]; ok {
		return userID, nil
	}
	return "", domain.ErrUnauthorized
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testServer struct {
	clock    *testClock
	router   *gin.Engine
	quizzes  *memory.QuizStore
	attempts *memory.AttemptStore
	ws       *WSHandler
}

func newTestServer(t *testing.T, mode app.ScoringMode, wsClock func() time.Time) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	if wsClock == nil {
		wsClock = clock.Now
	}
	quizzes := memory.NewQuizStore(map[string]domain.Quiz{"quiz-1": sampleQuiz()})
	attempts := memory.NewAttemptStore()
	ledger := app.NewAttemptLedgerWithClock(quizzes, attempts, nil, clock.Now)
	engine := app.NewScoringEngineWithClock(quizzes, attempts, ledger, mode, nil, clock.Now)
	service := app.NewQuizService(quizzes, attempts, app.RetainAttempts)

	ws := NewWSHandlerWithClock(service, ledger, engine, 20*time.Millisecond, wsClock)
	router := NewRouter(RouterConfig{
		Quizzes:  NewQuizHandler(service, ledger, engine, report.NewXLSXWriter()),
		WS:       ws,
		Verifier: fakeVerifier{"tok-author": "author-1", "tok-student": "student-1", "tok-other": "author-2"},
	})
	return &testServer{clock: clock, router: router, quizzes: quizzes, attempts: attempts, ws: ws}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func correctAnswers() []domain.SubmittedAnswer {
	return []domain.SubmittedAnswer{
		{QuestionID: "q1", OptionID: "q1-b", Correct: true, Marks: 5},
		{QuestionID: "q2", OptionID: "q2-a", Correct: true, Marks: 10},
	}
}

func TestStartAndSubmitOverHTTP(t *testing.T) {
	s := newTestServer(t, app.ScoreServerSide, nil)

	rec := s.do(t, http.MethodPost, "/api/quiz/quiz-1", "tok-student", map[string]any{
		"type": "log", "studentId": "S-42", "name": "Asha",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("log: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	started := decode[startResponse](t, rec)
	if !started.Success || !started.StartedAt.Equal(s.clock.Now()) {
		t.Fatalf("unexpected start %+v", started)
	}
	if got := started.Deadline.Sub(started.StartedAt); got != 10*time.Minute {
		t.Fatalf("expected 10m deadline, got %v", got)
	}

	s.clock.Advance(2 * time.Minute)
	rec = s.do(t, http.MethodPost, "/api/quiz/quiz-1", "tok-student", map[string]any{
		"type": "submit", "responses": correctAnswers(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	result := decode[submitResponse](t, rec)
	if !result.Success || result.Score != 15 || result.Total != 15 {
		t.Fatalf("unexpected result %+v", result)
	}

	rec = s.do(t, http.MethodPost, "/api/quiz/quiz-1", "tok-student", map[string]any{
		"type": "submit", "responses": correctAnswers(),
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("resubmit: expected 409, got %d", rec.Code)
	}
}

func TestSubmitAfterLimitIsRejected(t *testing.T) {
	s := newTestServer(t, app.ScoreServerSide, nil)

	s.do(t, http.MethodPost, "/api/quiz/quiz-1", "tok-student", map[string]any{"type": "log"})
	s.clock.Advance(11 * time.Minute)

	rec := s.do(t, http.MethodPost, "/api/quiz/quiz-1", "tok-student", map[string]any{
		"type": "submit", "responses": correctAnswers(),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decode[errorResponse](t, rec)
	if body.Success || body.Message != "Time limit exceeded" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestStudentErrors(t *testing.T) {
	s := newTestServer(t, app.ScoreServerSide, nil)

	cases := []struct {
		name   string
		token  string
		path   string
		body   any
		status int
	}{
		{"missing token", "", "/api/quiz/quiz-1", map[string]any{"type": "log"}, http.StatusUnauthorized},
		{"bad token", "nope", "/api/quiz/quiz-1", map[string]any{"type": "log"}, http.StatusUnauthorized},
		{"unknown quiz", "tok-student", "/api/quiz/missing", map[string]any{"type": "log"}, http.StatusNotFound},
		{"unknown type", "tok-student", "/api/quiz/quiz-1", map[string]any{"type": "peek"}, http.StatusBadRequest},
		{"submit before start", "tok-student", "/api/quiz/quiz-1", map[string]any{"type": "submit"}, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tc.path, tc.token, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestInactiveQuizRejectsNewStart(t *testing.T) {
	s := newTestServer(t, app.ScoreServerSide, nil)

	rec := s.do(t, http.MethodPut, "/api/quizzes/quiz-1/status", "tok-author", map[string]any{"status": "inactive"})
	if rec.Code != http.StatusOK {
		t.Fatalf("set status: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodPost, "/api/quiz/quiz-1", "tok-student", map[string]any{"type": "log"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestGetQuizHidesCorrectness(t *testing.T) {
	s := newTestServer(t, app.ScoreServerSide, nil)

	rec := s.do(t, http.MethodGet, "/api/quiz/quiz-1", "tok-student", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "isCorrect") {
		t.Fatalf("public quiz leaked correctness: %s", rec.Body.String())
	}

	legacy := newTestServer(t, app.ScoreTrustClient, nil)
	rec = legacy.do(t, http.MethodGet, "/api/quiz/quiz-1", "tok-student", nil)
	if !strings.Contains(rec.Body.String(), "isCorrect") {
		t.Fatalf("trust-client mode needs correctness on the client: %s", rec.Body.String())
	}
}

func TestAuthorEndpoints(t *testing.T) {
	s := newTestServer(t, app.ScoreServerSide, nil)

	draft := map[string]any{
		"title": "Go basics",
		"limit": 5,
		"questions": []map[string]any{
			{"title": "Zero value of int?", "marks": 2, "options": []map[string]any{
				{"value": "0", "isCorrect": true},
				{"value": "nil"},
			}},
		},
	}
	rec := s.do(t, http.MethodPost, "/api/quizzes", "tok-author", draft)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	created := decode[struct {
		Data domain.Quiz `json:"data"`
	}](t, rec)
	if created.Data.Slug == "" || created.Data.OwnerID != "author-1" {
		t.Fatalf("unexpected created quiz %+v", created.Data)
	}

	rec = s.do(t, http.MethodPost, "/api/quizzes", "tok-author", map[string]any{"title": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid draft: expected 400, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/quizzes", "tok-author", nil)
	list := decode[struct {
		Data []domain.QuizSummary `json:"data"`
	}](t, rec)
	if len(list.Data) != 2 {
		t.Fatalf("expected seeded and created quiz, got %+v", list.Data)
	}

	s.do(t, http.MethodPost, "/api/quiz/quiz-1", "tok-student", map[string]any{"type": "log", "studentId": "S-1", "name": "Asha"})

	rec = s.do(t, http.MethodGet, "/api/analysis/quiz-1", "tok-other", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign analysis: expected 403, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/analysis/quiz-1", "tok-author", nil)
	analysis := decode[struct {
		Data []domain.Response `json:"data"`
	}](t, rec)
	if len(analysis.Data) != 1 || analysis.Data[0].Name != "Asha" || analysis.Data[0].Scored() {
		t.Fatalf("unexpected analysis %+v", analysis.Data)
	}

	rec = s.do(t, http.MethodGet, "/api/analysis/quiz-1/export", "tok-author", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("export: got %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("export returned empty body")
	}

	rec = s.do(t, http.MethodDelete, "/api/quizzes/"+created.Data.Slug, "tok-other", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign delete: expected 403, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodDelete, "/api/quizzes/"+created.Data.Slug, "tok-author", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, app.ScoreServerSide, nil)
	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz %d %q", rec.Code, rec.Body.String())
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		Slug:         "quiz-1",
		OwnerID:      "author-1",
		Title:        "General knowledge",
		LimitMinutes: 10,
		Status:       domain.StatusActive,
		Questions: []domain.Question{
			{ID: "q1", Title: "What is 2 + 2?", Marks: 5, Options: []domain.Option{
				{ID: "q1-a", Value: "3"},
				{ID: "q1-b", Value: "4", Correct: true},
			}},
			{ID: "q2", Title: "Capital of France?", Marks: 10, Options: []domain.Option{
				{ID: "q2-a", Value: "Paris", Correct: true},
				{ID: "q2-b", Value: "Rome"},
			}},
		},
	}
}
