package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"carscout/internal/crawl"
	"carscout/internal/database"
	"carscout/internal/events"
	"carscout/internal/models"
	"carscout/internal/siteconfig"
	"carscout/internal/util"
	"carscout/internal/validation"
)

const (
	defaultMaxResults   = 25
	defaultCatalogLimit = 100
)

// Crawler is the engine surface the HTTP layer drives.
type Crawler interface {
	Search(ctx context.Context, q models.StructuredQuery, maxResults int, opts ...crawl.RunOption) ([]models.ListingRecord, error)
	CollectBrands(ctx context.Context, limit int, opts ...crawl.RunOption) ([]models.BrandRecord, error)
	CollectModelsForBrand(ctx context.Context, brand string, limit int, opts ...crawl.RunOption) ([]models.ModelRecord, error)
}

type CrawlHandler struct {
	crawler Crawler
	db      *database.Database
	site    *siteconfig.Config
	logger  *slog.Logger
	now     func() time.Time
}

func NewCrawlHandler(crawler Crawler, db *database.Database, site *siteconfig.Config, logger *slog.Logger) *CrawlHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrawlHandler{crawler: crawler, db: db, site: site, logger: logger, now: time.Now}
}

type BrandsResponse struct {
	OperationID string               `json:"operationId"`
	Count       int                  `json:"count"`
	Brands      []models.BrandRecord `json:"brands"`
	Error       string               `json:"error,omitempty"`
}

type ModelsResponse struct {
	OperationID string               `json:"operationId,omitempty"`
	Brand       string               `json:"brand"`
	Source      string               `json:"source"` // "crawl" or "catalog"
	Count       int                  `json:"count"`
	Models      []models.ModelRecord `json:"models"`
	Error       string               `json:"error,omitempty"`
}

// Search runs a listing search
// @Summary Search listings
// @Description Crawls CarGurus.ca for listings matching a structured query. With Accept: text/event-stream (or ?stream=true) progress events are streamed as SSE and the final payload arrives as a "result" event.
// @Tags crawl
// @Accept json
// @Produce json
// @Produce text/event-stream
// @Param request body models.SearchRequest true "Structured query and result limit"
// @Param stream query bool false "Stream progress as server-sent events"
// @Success 200 {object} models.SearchResponse
// @Failure 400 {object} map[string]string "Invalid query"
// @Failure 502 {object} models.SearchResponse "Blocked by the site"
// @Failure 503 {object} models.SearchResponse "Challenge not cleared or retries exhausted"
// @Router /api/search [post]
func (h *CrawlHandler) Search(c *gin.Context) {
	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.SafeErrorResponse(c, http.StatusBadRequest, "Invalid request data", err)
		return
	}
	if req.MaxResults == 0 {
		req.MaxResults = defaultMaxResults
	}
	if err := h.validateSearch(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	q, err := validation.NormalizeQuery(req.Query)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	opID := uuid.NewString()
	started := h.now()
	h.startRun(opID, crawl.KindSearch, q.Subject(), started)

	opts := []crawl.RunOption{
		crawl.WithOperationID(opID),
		crawl.WithProfile(req.ProfileID),
		crawl.WithRadius(req.Radius),
	}

	if wantsStream(c) {
		h.streamSearch(c, q, req.MaxResults, opID, opts)
		return
	}

	records, err := h.crawler.Search(c.Request.Context(), q, req.MaxResults, opts...)
	resp := h.finishSearch(opID, records, err)
	c.JSON(statusFor(err), resp)
}

func (h *CrawlHandler) streamSearch(c *gin.Context, q models.StructuredQuery, maxResults int, opID string, opts []crawl.RunOption) {
	sink := events.NewChannelSink(64)
	done := make(chan models.SearchResponse, 1)
	ctx := c.Request.Context()

	go func() {
		records, err := h.crawler.Search(ctx, q, maxResults, append(opts, crawl.WithEvents(sink))...)
		sink.Close()
		done <- h.finishSearch(opID, records, err)
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		ev, ok := <-sink.Events()
		if !ok {
			c.SSEvent("result", <-done)
			return false
		}
		c.SSEvent(ev.Name, ev)
		return true
	})
}

func (h *CrawlHandler) finishSearch(opID string, records []models.ListingRecord, err error) models.SearchResponse {
	if records == nil {
		records = []models.ListingRecord{}
	}
	resp := models.SearchResponse{OperationID: opID, Count: len(records), Listings: records}
	if err != nil {
		resp.Error = reasonFor(err)
	}

	finished := h.now()
	if len(records) > 0 {
		if _, serr := h.db.SaveListings(opID, records, finished); serr != nil {
			h.logger.Error("Failed to save listings", slog.String("operation_id", opID), slog.String("error", serr.Error()))
		}
	}
	h.finishRun(opID, len(records), err, finished)
	return resp
}

// Brands collects the makes offered by the site
// @Summary Collect brands
// @Description Reads the make filter from an unfiltered results page.
// @Tags catalog
// @Produce json
// @Param limit query int false "Maximum brands to return" default(100)
// @Param location query string false "City name or postal code"
// @Success 200 {object} BrandsResponse
// @Failure 503 {object} BrandsResponse "Crawl failed"
// @Router /api/brands [get]
func (h *CrawlHandler) Brands(c *gin.Context) {
	limit := queryInt(c, "limit", defaultCatalogLimit)
	opID := uuid.NewString()
	h.startRun(opID, crawl.KindBrands, "all makes", h.now())

	brands, err := h.crawler.CollectBrands(c.Request.Context(), limit,
		crawl.WithOperationID(opID),
		crawl.WithLocation(c.Query("location")))
	h.finishRun(opID, len(brands), err, h.now())

	if brands == nil {
		brands = []models.BrandRecord{}
	}
	resp := BrandsResponse{OperationID: opID, Count: len(brands), Brands: brands}
	if err != nil {
		resp.Error = reasonFor(err)
	}
	c.JSON(statusFor(err), resp)
}

// Models returns the models offered under a brand
// @Summary Collect models for a brand
// @Description Returns the stored model catalog for a brand, crawling the make & model filter when nothing is stored or refresh=true.
// @Tags catalog
// @Produce json
// @Param brand path string true "Brand name, e.g. acura"
// @Param limit query int false "Maximum models to return" default(100)
// @Param refresh query bool false "Ignore the stored catalog"
// @Param location query string false "City name or postal code"
// @Success 200 {object} ModelsResponse
// @Failure 400 {object} map[string]string "Unknown brand"
// @Failure 503 {object} ModelsResponse "Crawl failed"
// @Router /api/brands/{brand}/models [get]
func (h *CrawlHandler) Models(c *gin.Context) {
	brand := c.Param("brand")
	if err := validation.ValidateBrand(h.site, brand); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	limit := queryInt(c, "limit", defaultCatalogLimit)

	if refresh, _ := strconv.ParseBool(c.Query("refresh")); !refresh {
		stored, err := h.db.Models(brand)
		if err != nil {
			h.logger.Warn("Failed to read model catalog", slog.String("brand", brand), slog.String("error", err.Error()))
		}
		if len(stored) > 0 {
			if len(stored) > limit {
				stored = stored[:limit]
			}
			c.JSON(http.StatusOK, ModelsResponse{Brand: brand, Source: "catalog", Count: len(stored), Models: stored})
			return
		}
	}

	opID := uuid.NewString()
	started := h.now()
	h.startRun(opID, crawl.KindModels, brand, started)

	found, err := h.crawler.CollectModelsForBrand(c.Request.Context(), brand, limit,
		crawl.WithOperationID(opID),
		crawl.WithLocation(c.Query("location")))
	if len(found) > 0 {
		if _, serr := h.db.SaveModels(brand, found, h.now()); serr != nil {
			h.logger.Error("Failed to save models", slog.String("brand", brand), slog.String("error", serr.Error()))
		}
	}
	h.finishRun(opID, len(found), err, h.now())

	if found == nil {
		found = []models.ModelRecord{}
	}
	resp := ModelsResponse{OperationID: opID, Brand: brand, Source: "crawl", Count: len(found), Models: found}
	if err != nil {
		resp.Error = reasonFor(err)
	}
	c.JSON(statusFor(err), resp)
}

// GetRun returns a stored run with the listings it saw
// @Summary Get a crawl run
// @Tags runs
// @Produce json
// @Param id path string true "Operation id"
// @Param limit query int false "Maximum listings to include" default(50)
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string "Run not found"
// @Router /api/runs/{id} [get]
func (h *CrawlHandler) GetRun(c *gin.Context) {
	run, err := h.db.GetRun(c.Param("id"))
	if errors.Is(err, database.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Run not found"})
		return
	}
	if err != nil {
		util.SafeErrorResponse(c, http.StatusInternalServerError, "Failed to load run", err)
		return
	}

	listings, err := h.db.RecentListings(run.ID, queryInt(c, "limit", 50))
	if err != nil {
		util.SafeErrorResponse(c, http.StatusInternalServerError, "Failed to load listings", err)
		return
	}
	if listings == nil {
		listings = []models.ListingRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"run": run, "listings": listings})
}

// Stats summarises stored runs
// @Summary Crawl statistics
// @Tags runs
// @Produce json
// @Success 200 {object} database.Stats
// @Router /api/stats [get]
func (h *CrawlHandler) Stats(c *gin.Context) {
	stats, err := h.db.RunStats()
	if err != nil {
		util.SafeErrorResponse(c, http.StatusInternalServerError, "Failed to load stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *CrawlHandler) validateSearch(req models.SearchRequest) error {
	if err := validation.ValidateQuery(req.Query, h.now()); err != nil {
		return err
	}
	if err := validation.ValidateMaxResults(req.MaxResults); err != nil {
		return err
	}
	if req.ProfileID != "" {
		if err := validation.ValidateProfileID(req.ProfileID); err != nil {
			return err
		}
	}
	return nil
}

func (h *CrawlHandler) startRun(id, kind, subject string, at time.Time) {
	if err := h.db.StartRun(id, kind, subject, at); err != nil {
		h.logger.Error("Failed to record run start", slog.String("operation_id", id), slog.String("error", err.Error()))
	}
}

func (h *CrawlHandler) finishRun(id string, count int, err error, at time.Time) {
	status, reason := database.StatusCompleted, ""
	if err != nil {
		status, reason = database.StatusFailed, reasonFor(err)
	}
	if ferr := h.db.FinishRun(id, status, reason, count, at); ferr != nil {
		h.logger.Error("Failed to record run result", slog.String("operation_id", id), slog.String("error", ferr.Error()))
	}
}

// statusFor maps an operation failure to an HTTP status. Partial records
// still go out in the body.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var opErr *crawl.OperationError
	if !errors.As(err, &opErr) {
		return http.StatusInternalServerError
	}
	switch opErr.Kind {
	case crawl.KindBlocked:
		return http.StatusBadGateway
	case crawl.KindTransient, crawl.KindChallengeExhausted:
		return http.StatusServiceUnavailable
	case crawl.KindCanceled:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func reasonFor(err error) string {
	var opErr *crawl.OperationError
	if errors.As(err, &opErr) {
		return opErr.Reason()
	}
	return err.Error()
}

func wantsStream(c *gin.Context) bool {
	if v, err := strconv.ParseBool(c.Query("stream")); err == nil {
		return v
	}
	return c.GetHeader("Accept") == "text/event-stream"
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}
