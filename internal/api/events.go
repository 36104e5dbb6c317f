package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bterminal/bterminal/internal/logx"
	"github.com/bterminal/bterminal/pkg/types"
)

// streamEvents relays lifecycle events as server-sent events.
func (s *Server) streamEvents(c echo.Context) error {
	ctx := c.Request().Context()
	log := logx.Ctx(ctx)

	ch, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	log.Info("event stream opened")
	for {
		select {
		case <-ctx.Done():
			log.Info("event stream closed")
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return nil
			}
			w.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

func (s *Server) listAudit(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "invalid limit",
			})
		}
		limit = n
	}

	records, err := s.audit.Recent(c.Request().Context(), limit)
	if err != nil {
		logx.Ctx(c.Request().Context()).Warn("audit query failed", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	if records == nil {
		records = []types.AuditRecord{}
	}
	return c.JSON(http.StatusOK, records)
}
