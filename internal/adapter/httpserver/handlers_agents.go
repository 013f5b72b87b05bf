package httpserver

import (
	"errors"
	"net/http"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/agentpulse/internal/app"
	"github.com/pscheid92/agentpulse/internal/domain"
	apperrors "github.com/pscheid92/agentpulse/internal/platform/errors"
)

var allowedStates = []domain.AgentState{domain.AgentStateRunning, domain.AgentStatePaused}

type createAgentRequest struct {
	AgentID string `json:"agentId"`
}

type updateStateRequest struct {
	State string `json:"state"`
}

func (s *Server) registerAgentRoutes(mutationLimiter echo.MiddlewareFunc) {
	s.echo.GET("/agents", s.handleListAgents)
	s.echo.POST("/agents", s.handleCreateAgent, mutationLimiter)
	s.echo.POST("/agents/:id/state", s.handleUpdateAgentState, mutationLimiter)
}

func (s *Server) handleListAgents(c echo.Context) error {
	agents, err := s.agents.List(c.Request().Context())
	if err != nil {
		return agentError("failed to list agents", err)
	}
	return c.JSON(http.StatusOK, agents)
}

func (s *Server) handleCreateAgent(c echo.Context) error {
	var req createAgentRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	agent, err := s.agents.Create(c.Request().Context(), req.AgentID)
	if err != nil {
		return agentError("failed to create agent", err)
	}

	c.Response().Header().Set(echo.HeaderLocation, "/agents/"+agent.ID)
	return c.JSON(http.StatusCreated, agent)
}

func (s *Server) handleUpdateAgentState(c echo.Context) error {
	var req updateStateRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	agent, err := s.agents.UpdateState(c.Request().Context(), c.Param("id"), req.State)
	if err != nil {
		return agentError("failed to update agent state", err).WithField("agent_id", c.Param("id"))
	}
	return c.JSON(http.StatusOK, agent)
}

// agentError maps service errors onto API errors.
func agentError(message string, err error) *apperrors.Error {
	switch {
	case errors.Is(err, domain.ErrInvalidState):
		return apperrors.ValidationError("invalid state").WithField("allowed", allowedStates)
	case errors.Is(err, domain.ErrEmptyAgentID):
		return apperrors.ValidationError("agent id must not be empty")
	case errors.Is(err, app.ErrPublish):
		return apperrors.ExternalError("agent stored but update not published", err)
	case errors.Is(err, circuitbreaker.ErrOpen):
		return apperrors.UnavailableError("agent store unavailable", err)
	default:
		return apperrors.InternalError(message, err)
	}
}
