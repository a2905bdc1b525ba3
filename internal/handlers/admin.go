package handlers

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"carscout/internal/cache"
	"carscout/internal/database"
	"carscout/internal/siteconfig"
	"carscout/internal/urlbuilder"
	"carscout/internal/util"
)

var listingIDOnly = regexp.MustCompile(`^\d{4,12}$`)

type AdminHandler struct {
	deadLinks cache.DeadLinks
	urls      *urlbuilder.Builder
}

func NewAdminHandler(deadLinks cache.DeadLinks, site *siteconfig.Config) *AdminHandler {
	return &AdminHandler{deadLinks: deadLinks, urls: urlbuilder.New(site)}
}

// DeadLinksRequest takes CarGurus car links or bare listing ids. Links that
// carry a listing id are stored in the canonical /Cars/link/<id> form
// searches produce.
type DeadLinksRequest struct {
	Links []string `json:"links" binding:"required,min=1,max=500"`
}

// ListDeadLinks returns every link currently marked dead
// @Summary List dead links
// @Tags admin
// @Produce json
// @Param X-Admin-Key header string true "Admin key"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /api/admin/dead-links [get]
func (h *AdminHandler) ListDeadLinks(c *gin.Context) {
	links, err := h.deadLinks.List(c.Request.Context())
	if err != nil {
		util.SafeErrorResponse(c, http.StatusInternalServerError, "Failed to list dead links", err)
		return
	}
	if links == nil {
		links = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(links), "links": links})
}

// MarkDeadLinks marks links so crawls skip them
// @Summary Mark dead links
// @Tags admin
// @Accept json
// @Produce json
// @Param X-Admin-Key header string true "Admin key"
// @Param request body DeadLinksRequest true "Links to mark"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string "Invalid request"
// @Router /api/admin/dead-links [post]
func (h *AdminHandler) MarkDeadLinks(c *gin.Context) {
	links, ok := h.bindLinks(c)
	if !ok {
		return
	}
	if err := h.deadLinks.MarkDead(c.Request.Context(), links...); err != nil {
		util.SafeErrorResponse(c, http.StatusInternalServerError, "Failed to mark dead links", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "marked": len(links)})
}

// RemoveDeadLinks forgets links previously marked dead
// @Summary Remove dead links
// @Tags admin
// @Accept json
// @Produce json
// @Param X-Admin-Key header string true "Admin key"
// @Param request body DeadLinksRequest true "Links to remove"
// @Success 200 {object} map[string]interface{}
// @Router /api/admin/dead-links [delete]
func (h *AdminHandler) RemoveDeadLinks(c *gin.Context) {
	links, ok := h.bindLinks(c)
	if !ok {
		return
	}
	if err := h.deadLinks.Remove(c.Request.Context(), links...); err != nil {
		util.SafeErrorResponse(c, http.StatusInternalServerError, "Failed to remove dead links", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "removed": len(links)})
}

func (h *AdminHandler) bindLinks(c *gin.Context) ([]string, bool) {
	var req DeadLinksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request data"})
		return nil, false
	}
	links := make([]string, 0, len(req.Links))
	for _, l := range req.Links {
		link, ok := h.canonicalLink(strings.TrimSpace(l))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "links must be CarGurus car links or listing ids"})
			return nil, false
		}
		links = append(links, link)
	}
	return links, true
}

func (h *AdminHandler) canonicalLink(l string) (string, bool) {
	if listingIDOnly.MatchString(l) {
		return h.urls.ListingURL(l), true
	}
	if !strings.HasPrefix(l, "https://") && !strings.HasPrefix(l, "http://") {
		return "", false
	}
	if !urlbuilder.IsCarGurusURL(l) {
		return "", false
	}
	if id, ok := urlbuilder.ListingIDFromURL(l); ok {
		return h.urls.ListingURL(id), true
	}
	return l, true
}

// Health reports whether the service can reach its database
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/health [get]
func Health(db *database.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
