package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bterminal/bterminal/internal/session"
	"github.com/bterminal/bterminal/pkg/types"
)

const maxSessionIDLen = 128

func (s *Server) listSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.List())
}

func (s *Server) createSession(c echo.Context) error {
	var req types.SessionCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	if len(id) > maxSessionIDLen || strings.ContainsAny(id, "/?#") {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid session id",
		})
	}

	sess, err := s.registry.Create(c.Request().Context(), id)
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusCreated, types.SessionSummary{ID: sess.ID})
}

func (s *Server) getSession(c echo.Context) error {
	sess, ok := s.registry.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": session.ErrSessionNotFound.Error(),
		})
	}
	return c.JSON(http.StatusOK, sess.Detail())
}

func (s *Server) deleteSession(c echo.Context) error {
	if !s.registry.Remove(c.Param("id")) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": session.ErrSessionNotFound.Error(),
		})
	}
	return c.NoContent(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionClosed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
