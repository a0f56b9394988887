package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/snipgo/snip/internal/model"
	"github.com/snipgo/snip/internal/service"
)

// URLHandler handles HTTP requests for URL operations
type URLHandler struct {
	service      *service.URLService
	baseURL      string
	defaultLimit int
	maxLimit     int
}

// NewURLHandler creates a new URL handler instance
func NewURLHandler(svc *service.URLService, baseURL string, defaultLimit, maxLimit int) *URLHandler {
	return &URLHandler{
		service:      svc,
		baseURL:      baseURL,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// ShortenRequest represents the request body for creating a short URL
type ShortenRequest struct {
	LongURL     string     `json:"long_url" binding:"required"`
	CustomAlias *string    `json:"custom_alias,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	MaxClicks   *uint64    `json:"max_clicks,omitempty"`
	Password    *string    `json:"password,omitempty"`
}

// ShortenResponse represents the response for creating a short URL
type ShortenResponse struct {
	ID        uint       `json:"id"`
	ShortCode string     `json:"short_code"`
	ShortURL  string     `json:"short_url"`
	LongURL   string     `json:"long_url"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// UpdateRequest represents the request body for a sparse update. Keys
// absent from the body leave the field untouched; an explicit null
// clears expires_at or max_clicks.
type UpdateRequest struct {
	Title       service.Field[string]    `json:"title"`
	Description service.Field[string]    `json:"description"`
	IsActive    service.Field[bool]      `json:"is_active"`
	ExpiresAt   service.Field[time.Time] `json:"expires_at"`
	MaxClicks   service.Field[uint64]    `json:"max_clicks"`
}

// Response represents a generic API response
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Shorten handles POST /api/v1/shorten
func (h *URLHandler) Shorten(c *gin.Context) {
	var req ShortenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code:    http.StatusBadRequest,
			Message: "Invalid request: " + err.Error(),
		})
		return
	}

	creatorIP := c.ClientIP()
	u, err := h.service.Create(c.Request.Context(), service.CreateInput{
		LongURL:     req.LongURL,
		CustomAlias: req.CustomAlias,
		Title:       req.Title,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
		MaxClicks:   req.MaxClicks,
		Password:    req.Password,
		CreatorIP:   &creatorIP,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Code: http.StatusCreated,
		Data: ShortenResponse{
			ID:        u.ID,
			ShortCode: u.ShortCode,
			ShortURL:  h.buildShortURL(u),
			LongURL:   u.LongURL,
			CreatedAt: u.CreatedAt,
			ExpiresAt: u.ExpiresAt,
		},
	})
}

// List handles GET /api/v1/urls
func (h *URLHandler) List(c *gin.Context) {
	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil || skip < 0 {
		skip = 0
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(h.defaultLimit)))
	if err != nil || limit < 1 {
		limit = h.defaultLimit
	}
	if limit > h.maxLimit {
		limit = h.maxLimit
	}
	activeOnly := c.DefaultQuery("active_only", "false") == "true"

	urls, err := h.service.List(c.Request.Context(), skip, limit, activeOnly)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Code: http.StatusOK,
		Data: urls,
	})
}

// GetInfo handles GET /api/v1/urls/{code}
func (h *URLHandler) GetInfo(c *gin.Context) {
	u, err := h.service.GetByIdentifier(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Code: http.StatusOK,
		Data: u,
	})
}

// GetStats handles GET /api/v1/urls/{code}/stats
func (h *URLHandler) GetStats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Code: http.StatusOK,
		Data: stats,
	})
}

// Update handles PATCH /api/v1/urls/{id}
func (h *URLHandler) Update(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code:    http.StatusBadRequest,
			Message: "Invalid request: " + err.Error(),
		})
		return
	}

	u, err := h.service.Update(c.Request.Context(), id, service.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		IsActive:    req.IsActive,
		ExpiresAt:   req.ExpiresAt,
		MaxClicks:   req.MaxClicks,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Code: http.StatusOK,
		Data: u,
	})
}

// Delete handles DELETE /api/v1/urls/{id}
func (h *URLHandler) Delete(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	hard := c.DefaultQuery("hard", "false") == "true"

	if err := h.service.Delete(c.Request.Context(), id, hard); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Redirect handles GET /{code}
func (h *URLHandler) Redirect(c *gin.Context) {
	var candidate *string
	if pw, ok := c.GetQuery("password"); ok {
		candidate = &pw
	}

	destination, err := h.service.Redirect(c.Request.Context(), c.Param("code"), candidate)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, destination)
}

// HealthCheck handles GET /health
func (h *URLHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "OK",
	})
}

// writeError translates service errors into HTTP status codes.
func (h *URLHandler) writeError(c *gin.Context, err error) {
	var gone *service.GoneError
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{
			Code:    http.StatusNotFound,
			Message: "Short URL not found",
		})
	case errors.Is(err, service.ErrAliasConflict):
		c.JSON(http.StatusConflict, Response{
			Code:    http.StatusConflict,
			Message: err.Error(),
		})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, Response{
			Code:    http.StatusUnauthorized,
			Message: "This URL is password protected. Provide a valid password query parameter.",
		})
	case errors.As(err, &gone):
		c.JSON(http.StatusGone, Response{
			Code:    http.StatusGone,
			Message: gone.Reason.Message(),
		})
	case service.IsValidation(err):
		c.JSON(http.StatusBadRequest, Response{
			Code:    http.StatusBadRequest,
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, Response{
			Code:    http.StatusInternalServerError,
			Message: "Internal server error",
		})
	}
}

func (h *URLHandler) parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, Response{
			Code:    http.StatusBadRequest,
			Message: "Invalid URL id",
		})
		return 0, false
	}
	return uint(id), true
}

// buildShortURL builds the public short URL. A custom alias takes
// precedence since that is what the creator asked to share.
func (h *URLHandler) buildShortURL(u *model.URL) string {
	identifier := u.ShortCode
	if u.CustomAlias != nil {
		identifier = *u.CustomAlias
	}
	return fmt.Sprintf("%s/%s", h.baseURL, identifier)
}
