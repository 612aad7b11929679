package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/counseld/internal/conversation"
	"github.com/fyrsmithlabs/counseld/internal/crisis"
	"github.com/fyrsmithlabs/counseld/internal/intake"
	"github.com/fyrsmithlabs/counseld/internal/taxonomy"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ClassifyRequest is the request body for POST /api/v1/classify.
type ClassifyRequest struct {
	Content string `json:"content"`
}

// ClassifyResponse is the response body for POST /api/v1/classify.
type ClassifyResponse struct {
	Assessment crisis.Assessment `json:"assessment"`
	Response   *crisis.Response  `json:"response,omitempty"`
}

// GoalsRequest is the request body for PUT goals.
type GoalsRequest struct {
	Goals []string `json:"goals"`
}

// IntakeErrorResponse reports a pipeline failure. Result carries the
// classification outcome when it happened before the failure, so the
// caller can still deliver a crisis response.
type IntakeErrorResponse struct {
	Error  string         `json:"error"`
	Result *intake.Result `json:"result,omitempty"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, conversation.ErrInvalidInput),
		errors.Is(err, intake.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: "counseld"})
}

func (s *Server) handleIntake(c echo.Context) error {
	var req intake.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	key := req.ClientID
	if key == "" {
		key = req.ConversationID
	}
	if !s.limiter.allow(key) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
	}

	result, err := s.intake.Process(c.Request().Context(), req)
	if err != nil {
		s.logger.Warn("intake failed", zap.Error(err))
		return c.JSON(statusFor(err), IntakeErrorResponse{
			Error:  err.Error(),
			Result: result,
		})
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, result)
}

func (s *Server) handleClassify(c echo.Context) error {
	var req ClassifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	resp := ClassifyResponse{Assessment: s.classifier.Classify(req.Content)}
	if resp.Assessment.Level != taxonomy.TierNone {
		if r, err := crisis.SelectResponse(resp.Assessment.Level); err == nil {
			resp.Response = &r
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCreateConversation(c echo.Context) error {
	var params conversation.CreateParams
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	conv, err := s.store.Create(c.Request().Context(), params)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(c echo.Context) error {
	conv, err := s.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) handleHistory(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
		}
		limit = n
	}

	history, err := s.store.History(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, history)
}

func (s *Server) handleSummary(c echo.Context) error {
	sum, err := s.store.Summarize(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	if sum == nil {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	return c.JSON(http.StatusOK, sum)
}

func (s *Server) handleUpdateGoals(c echo.Context) error {
	var req GoalsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	goals, err := s.store.UpdateGoals(c.Request().Context(), c.Param("id"), req.Goals)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, GoalsRequest{Goals: goals})
}

func (s *Server) handleStartSession(c echo.Context) error {
	count, err := s.store.StartSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"session_count": count})
}

func (s *Server) handleCloseConversation(c echo.Context) error {
	if err := s.store.SetStatus(c.Request().Context(), c.Param("id"), conversation.StatusClosed); err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleResolveFlag(c echo.Context) error {
	if err := s.store.ResolveFlag(c.Request().Context(), c.Param("id"), c.Param("flag_id")); err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListByClient(c echo.Context) error {
	convs, err := s.store.ListByClient(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, convs)
}

func (s *Server) handleSearch(c echo.Context) error {
	query := c.QueryParam("q")
	filters := conversation.SearchFilters{
		ServiceType: c.QueryParam("service_type"),
		ClientID:    c.QueryParam("client_id"),
		CounselorID: c.QueryParam("counselor_id"),
	}

	results, err := s.store.Search(c.Request().Context(), query, filters)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	if results == nil {
		results = []conversation.SearchResult{}
	}
	return c.JSON(http.StatusOK, results)
}

func (s *Server) handleAnalytics(c echo.Context) error {
	a, err := s.store.Analytics(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}
