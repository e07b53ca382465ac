package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sadeshahansana5-cloud/mediadex/internal/backfill"
	"github.com/sadeshahansana5-cloud/mediadex/internal/catalog"
	"github.com/sadeshahansana5-cloud/mediadex/internal/ingest"
	"github.com/sadeshahansana5-cloud/mediadex/internal/query"
)

// --- Search ---

func (s *Server) search(c echo.Context) error {
	ctx := c.Request().Context()

	q := c.QueryParam("q")
	if q == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "query parameter q is required"})
	}

	counts, err := s.engine.SearchCategories(ctx, q)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	// No hits anywhere is a distinct outcome, not an error.
	if len(counts) == 0 {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"query":     q,
			"noResults": true,
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"query":      q,
		"categories": counts,
	})
}

// --- Listing and facets ---

func (s *Server) listFiles(c echo.Context) error {
	ctx := c.Request().Context()

	category, ok := parseCategory(c.QueryParam("category"))
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid category"})
	}

	facets := query.FacetState{}
	if v := c.QueryParam("season"); v != "" {
		season, err := strconv.Atoi(v)
		if err != nil || season <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid season"})
		}
		facets = facets.SelectSeason(season)
	}
	if v := c.QueryParam("episode"); v != "" {
		episode, err := strconv.Atoi(v)
		if err != nil || episode <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid episode"})
		}
		facets = facets.SelectEpisode(episode)
	}

	page, err := parsePage(c.QueryParam("page"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid page"})
	}

	result, err := s.engine.ListPage(ctx, category, c.QueryParam("q"), facets, page)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) listFacets(c echo.Context) error {
	ctx := c.Request().Context()

	facet := catalog.FacetField(c.QueryParam("facet"))
	if !facet.Valid() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "facet must be season or episode"})
	}

	page, err := parsePage(c.QueryParam("page"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid page"})
	}

	result, err := s.engine.ListFacetValues(ctx, facet, c.QueryParam("q"), page)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) getFile(c echo.Context) error {
	ctx := c.Request().Context()

	rec, err := s.store.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "record not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, rec)
}

func (s *Server) resolveDelivery(c echo.Context) error {
	ctx := c.Request().Context()

	if s.flags.MaintenanceMode() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "catalog is under maintenance"})
	}

	ref, err := s.store.ResolveDeliveryRef(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "record not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"id":          c.Param("id"),
		"transferRef": ref,
	})
}

// --- Ingestion ---

func (s *Server) ingestEvent(c echo.Context) error {
	ctx := c.Request().Context()

	var ev ingest.Event
	if err := c.Bind(&ev); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if ev.SourceChannel == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "sourceChannel is required"})
	}

	result, err := s.pipeline.Ingest(ctx, ev)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	status := http.StatusOK
	if result.Outcome == ingest.OutcomeInserted {
		status = http.StatusCreated
	}
	return c.JSON(status, map[string]interface{}{
		"outcome": result.Outcome,
		"record":  result.Record,
	})
}

// --- Backfill ---

type proposeRequest struct {
	ChannelID     int64 `json:"channelId"`
	LastMessageID int64 `json:"lastMessageId"`
}

func (s *Server) proposeBackfill(c echo.Context) error {
	var req proposeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	proposal, err := s.coordinator.Propose(req.ChannelID, req.LastMessageID)
	if err != nil {
		if errors.Is(err, backfill.ErrInvalidRange) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, proposal)
}

type confirmRequest struct {
	SkipOffset int64 `json:"skipOffset"`
}

func (s *Server) confirmBackfill(c echo.Context) error {
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	run, err := s.coordinator.Confirm(c.Param("proposalId"), req.SkipOffset)
	if err != nil {
		switch {
		case errors.Is(err, backfill.ErrProposalNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "proposal not found or expired"})
		case errors.Is(err, backfill.ErrRunInProgress):
			return c.JSON(http.StatusConflict, map[string]string{"error": "a backfill is already running for this channel"})
		case errors.Is(err, backfill.ErrInvalidRange):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}

	return c.JSON(http.StatusAccepted, run.Snapshot())
}

func (s *Server) backfillStatus(c echo.Context) error {
	channelID, err := strconv.ParseInt(c.Param("channel"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid channel id"})
	}

	snap, err := s.coordinator.Status(channelID)
	if err != nil {
		if errors.Is(err, backfill.ErrNoRun) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "no backfill run for channel"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, snap)
}

func (s *Server) cancelBackfill(c echo.Context) error {
	channelID, err := strconv.ParseInt(c.Param("channel"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid channel id"})
	}

	if err := s.coordinator.Cancel(channelID); err != nil {
		if errors.Is(err, backfill.ErrNoRun) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "no backfill run for channel"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// --- Stats and flags ---

func (s *Server) getStats(c echo.Context) error {
	ctx := c.Request().Context()

	overview, err := s.statsSvc.Overview(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, overview)
}

type flagsResponse struct {
	MaintenanceMode bool `json:"maintenanceMode"`
	AutoAnnounce    bool `json:"autoAnnounce"`
}

type flagsUpdateRequest struct {
	MaintenanceMode *bool `json:"maintenanceMode"`
	AutoAnnounce    *bool `json:"autoAnnounce"`
}

func (s *Server) getFlags(c echo.Context) error {
	return c.JSON(http.StatusOK, flagsResponse{
		MaintenanceMode: s.flags.MaintenanceMode(),
		AutoAnnounce:    s.flags.AutoAnnounce(),
	})
}

func (s *Server) updateFlags(c echo.Context) error {
	var req flagsUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if req.MaintenanceMode != nil {
		s.flags.SetMaintenanceMode(*req.MaintenanceMode)
		s.logger.Info().Bool("maintenanceMode", *req.MaintenanceMode).Msg("Maintenance mode updated")
	}
	if req.AutoAnnounce != nil {
		s.flags.SetAutoAnnounce(*req.AutoAnnounce)
		s.logger.Info().Bool("autoAnnounce", *req.AutoAnnounce).Msg("Auto announce updated")
	}

	return c.JSON(http.StatusOK, flagsResponse{
		MaintenanceMode: s.flags.MaintenanceMode(),
		AutoAnnounce:    s.flags.AutoAnnounce(),
	})
}

// --- Helpers ---

func parseCategory(raw string) (catalog.Category, bool) {
	if raw == "" {
		return "", false
	}
	for _, cat := range catalog.Categories {
		if string(cat) == raw {
			return cat, true
		}
	}
	return "", false
}

func parsePage(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 0 {
		return 0, errors.New("invalid page")
	}
	return page, nil
}
