package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lensmirror/backend/internal/lens"
	"github.com/lensmirror/backend/internal/mirror"
	"github.com/lensmirror/backend/internal/store"
	"go.uber.org/zap"
)

var (
	errMissingStore  = errors.New("record store dependency required")
	errMissingEngine = errors.New("sync engine dependency required")
)

// Dependencies wires the HTTP layer to the core.
type Dependencies struct {
	Store  *store.Store
	Engine *mirror.Engine
	Logger *zap.Logger
}

// NewHTTPHandler builds the gin router serving the mirror API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Store == nil {
		return nil, errMissingStore
	}
	if deps.Engine == nil {
		return nil, errMissingEngine
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		store:  deps.Store,
		engine: deps.Engine,
		logger: logger,
	}

	router.GET("/healthz", handler.handleHealth)

	v1 := router.Group("/vc/v1")
	v1.GET("/explorer/search", handler.handleSearch)
	v1.POST("/explorer/lenses", handler.handleLenses)
	v1.GET("/explorer/unlock", handler.handleUnlock)
	v1.POST("/reporting/lens", handler.handleReportLens)
	v1.POST("/import/mirror", handler.handleMirror)

	return router, nil
}

// requestLogger attaches a correlation id and emits one line per request.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Header("X-Request-Id", requestID)
		start := time.Now()
		c.Next()
		logger.Debug("request served",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

type httpHandler struct {
	store  *store.Store
	engine *mirror.Engine
	logger *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type lensListPayload struct {
	Lenses []lens.Lens `json:"lenses"`
}

// handleSearch answers a search term store-first; when the local store has
// nothing it falls back to the remote platform through the engine and its
// result cache. The response is always 200 with a (possibly empty) list.
func (h *httpHandler) handleSearch(c *gin.Context) {
	term := strings.TrimSpace(c.Query("query"))
	if term == "" {
		c.JSON(http.StatusOK, lensListPayload{Lenses: []lens.Lens{}})
		return
	}

	ctx := c.Request.Context()
	results := h.searchLocal(ctx, term)
	if len(results) == 0 {
		results = h.engine.Search(ctx, term)
	}
	c.JSON(http.StatusOK, lensListPayload{Lenses: results})
}

func (h *httpHandler) searchLocal(ctx context.Context, term string) []lens.Lens {
	if hash := lens.ParseUUID(term); hash != "" {
		return h.store.SearchByUUID(ctx, hash)
	}
	if strings.HasPrefix(term, "#") {
		tags := strings.Fields(strings.ReplaceAll(term, "#", " "))
		return h.store.SearchByTags(ctx, tags)
	}
	return h.store.SearchByName(ctx, term)
}

type lensIDsPayload struct {
	Lenses []int64 `json:"lenses"`
}

func (h *httpHandler) handleLenses(c *gin.Context) {
	var request lensIDsPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Lenses) == 0 {
		c.JSON(http.StatusOK, lensListPayload{Lenses: []lens.Lens{}})
		return
	}
	c.JSON(http.StatusOK, lensListPayload{Lenses: h.store.GetByIDs(c.Request.Context(), request.Lenses)})
}

func (h *httpHandler) handleUnlock(c *gin.Context) {
	lensID, ok := parseLensID(c.Query("lens_id"))
	if !ok {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	unlocks := h.store.GetUnlockByLensID(c.Request.Context(), lensID)
	if len(unlocks) == 0 {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, unlocks[0])
}

type reportPayload struct {
	LensID int64 `json:"lens_id"`
}

// handleReportLens is the remirror trigger: the report feature of the client
// is repurposed to re-download assets for a lens whose metadata is intact.
// No remote refetch, no metadata change.
func (h *httpHandler) handleReportLens(c *gin.Context) {
	var request reportPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.LensID == 0 {
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	ctx := c.Request.Context()
	stored := h.store.GetByID(ctx, request.LensID)
	if len(stored) > 0 {
		if err := h.store.InsertLens(ctx, stored[0], true); err != nil {
			h.logger.Warn("remirror failed", zap.Int64("lens_id", request.LensID), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (h *httpHandler) handleMirror(c *gin.Context) {
	var request lensListPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Lenses) == 0 {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	h.engine.MirrorSearchResults(c.Request.Context(), request.Lenses)
	c.JSON(http.StatusOK, gin.H{})
}

func parseLensID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
