package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/finlegal/tenkdraft/internal/assistant"
	"github.com/finlegal/tenkdraft/internal/audit"
	"github.com/finlegal/tenkdraft/internal/generation"
	"github.com/finlegal/tenkdraft/models"
	"github.com/finlegal/tenkdraft/provider"
)

func (s *Server) requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.General.DefaultTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return context.WithTimeout(c.Request().Context(), timeout)
}

// httpError maps internal failures to API status codes: unknown sessions to
// 404, transient LLM failures to 503 so clients know to retry.
func httpError(err error) error {
	switch {
	case errors.Is(err, assistant.ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	case provider.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "generation temporarily unavailable, please retry")
	default:
		return err
	}
}

func (s *Server) handleCompanies(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"companies": s.cfg.Companies})
}

type chatStartResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (s *Server) handleChatStart(c echo.Context) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	sess, greeting, err := s.assistant.StartSession(ctx)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, chatStartResponse{SessionID: sess.ID, Message: greeting})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID  string `json:"session_id"`
	Reply      string `json:"reply"`
	Stage      string `json:"stage"`
	Ticker     string `json:"ticker,omitempty"`
	FiscalYear string `json:"fiscal_year,omitempty"`
}

func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" || req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id and message are required")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	reply, sess, err := s.assistant.ProcessMessage(ctx, req.SessionID, req.Message)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, chatResponse{
		SessionID:  sess.ID,
		Reply:      reply,
		Stage:      string(sess.Stage),
		Ticker:     sess.Ticker,
		FiscalYear: sess.FiscalYear,
	})
}

type generateRequest struct {
	Ticker            string            `json:"ticker"`
	FiscalYear        string            `json:"fiscal_year"`
	FinancialData     map[string]string `json:"financial_data,omitempty"`
	AdditionalContext string            `json:"additional_context,omitempty"`
}

type generateResponse struct {
	SessionID string                   `json:"session_id"`
	Ticker    string                   `json:"ticker"`
	Year      string                   `json:"fiscal_year"`
	Business  *models.GenerationOutput `json:"business"`
	MDA       *models.GenerationOutput `json:"mda,omitempty"`
}

// handleGenerate drafts sections non-interactively: Business always, MD&A
// when financial data accompanies the request.
func (s *Server) handleGenerate(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	company, ok := s.cfg.Company(req.Ticker)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown ticker: "+req.Ticker)
	}
	if req.FiscalYear == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "fiscal_year is required")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	sessionID := "api-" + uuid.NewString()

	business, err := s.pipeline.Generate(ctx, generation.Request{
		SessionID:         sessionID,
		Ticker:            company.Ticker,
		CompanyName:       company.Name,
		FiscalYear:        req.FiscalYear,
		Section:           generation.SectionBusiness,
		AdditionalContext: req.AdditionalContext,
	})
	if err != nil {
		return httpError(err)
	}

	resp := generateResponse{SessionID: sessionID, Ticker: company.Ticker, Year: req.FiscalYear, Business: business}
	if len(req.FinancialData) > 0 {
		mda, err := s.pipeline.Generate(ctx, generation.Request{
			SessionID:     sessionID,
			Ticker:        company.Ticker,
			CompanyName:   company.Name,
			FiscalYear:    req.FiscalYear,
			Section:       generation.SectionMDA,
			FinancialData: req.FinancialData,
		})
		if err != nil {
			return httpError(err)
		}
		resp.MDA = mda
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSessionAudit(c echo.Context) error {
	id := c.Param("id")
	ctx, cancel := s.requestContext(c)
	defer cancel()

	records, err := s.recorder.SessionRecords(ctx, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"summary": audit.Summarize(id, records),
		"records": records,
	})
}

func (s *Server) handleSessionContent(c echo.Context) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	sess, err := s.assistant.Session(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id":  sess.ID,
		"stage":       sess.Stage,
		"ticker":      sess.Ticker,
		"fiscal_year": sess.FiscalYear,
		"sections":    sess.GeneratedSections,
	})
}

func (s *Server) handleSessionReset(c echo.Context) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	sess, err := s.assistant.Reset(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"session_id": sess.ID, "stage": sess.Stage})
}
