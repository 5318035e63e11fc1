package http

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"quizzr-service/internal/app"
	"quizzr-service/internal/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// QuizHandler serves the author dashboard and the student quiz endpoints.
type QuizHandler struct {
	quizzes *app.QuizService
	ledger  *app.AttemptLedger
	engine  *app.ScoringEngine
	report  app.AnalysisWriter
}

func NewQuizHandler(quizzes *app.QuizService, ledger *app.AttemptLedger, engine *app.ScoringEngine, report app.AnalysisWriter) *QuizHandler {
	return &QuizHandler{quizzes: quizzes, ledger: ledger, engine: engine, report: report}
}

type dataResponse struct {
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

type statusRequest struct {
	Status domain.QuizStatus `json:"status" binding:"required"`
}

type attemptRequest struct {
	Type      string                   `json:"type" binding:"required,oneof=log submit"`
	StudentID string                   `json:"studentId"`
	Name      string                   `json:"name"`
	Responses []domain.SubmittedAnswer `json:"responses"`
}

type startResponse struct {
	Success   bool      `json:"success"`
	StartedAt time.Time `json:"startedAt"`
	Deadline  time.Time `json:"deadline"`
}

type submitResponse struct {
	Success bool `json:"success"`
	Score   int  `json:"score"`
	Total   int  `json:"total"`
}

func (h *QuizHandler) ListQuizzes(c *gin.Context) {
	summaries, err := h.quizzes.ListQuizzes(c.Request.Context(), currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dataResponse{Data: summaries, Message: "Quizzes fetched successfully"})
}

func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	var draft domain.Quiz
	if err := c.ShouldBindJSON(&draft); err != nil {
		badRequest(c, "invalid quiz payload")
		return
	}
	quiz, err := h.quizzes.CreateQuiz(c.Request.Context(), currentUser(c), draft)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dataResponse{Data: quiz, Message: "Quiz created successfully"})
}

func (h *QuizHandler) SetStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}
	if err := h.quizzes.SetStatus(c.Request.Context(), currentUser(c), c.Param("slug"), req.Status); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *QuizHandler) DeleteQuiz(c *gin.Context) {
	if err := h.quizzes.DeleteQuiz(c.Request.Context(), currentUser(c), c.Param("slug")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetQuiz returns the student view: option correctness is never sent unless
// the engine scores on the client's word.
func (h *QuizHandler) GetQuiz(c *gin.Context) {
	quiz, err := h.quizzes.GetQuiz(c.Request.Context(), c.Param("slug"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	var data any = quiz.Public()
	if h.engine.Mode() == app.ScoreTrustClient {
		data = quiz
	}
	c.JSON(http.StatusOK, dataResponse{Data: data, Message: "Quiz fetched successfully"})
}

// PostAttempt handles both the start log and the final submission.
func (h *QuizHandler) PostAttempt(c *gin.Context) {
	var req attemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "type must be log or submit")
		return
	}
	ctx := c.Request.Context()
	slug := c.Param("slug")
	userID := currentUser(c)

	switch req.Type {
	case "log":
		attempt, err := h.ledger.RegisterStart(ctx, slug, userID, app.Student{ID: req.StudentID, Name: req.Name})
		if err != nil {
			abortWithError(c, err)
			return
		}
		quiz, err := h.quizzes.GetQuiz(ctx, slug)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, startResponse{
			Success:   true,
			StartedAt: attempt.StartedAt,
			Deadline:  attempt.Deadline(quiz.Limit()),
		})
	case "submit":
		result, err := h.engine.SubmitAttempt(ctx, slug, userID, req.Responses)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, submitResponse{Success: true, Score: result.Score, Total: result.Total})
	}
}

func (h *QuizHandler) Analysis(c *gin.Context) {
	responses, err := h.quizzes.Analysis(c.Request.Context(), currentUser(c), c.Param("slug"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dataResponse{Data: responses, Message: "Analysis fetched successfully"})
}

func (h *QuizHandler) ExportAnalysis(c *gin.Context) {
	slug := c.Param("slug")
	var buf bytes.Buffer
	if err := h.quizzes.ExportAnalysis(c.Request.Context(), currentUser(c), slug, h.report, &buf); err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, slug))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
