package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/celerix-dev/celerix-ledger/pkg/apperr"
	"github.com/celerix-dev/celerix-ledger/pkg/sdk"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	Ledger sdk.Ledger
	Logger *slog.Logger
}

// Register mounts the entity routes on g.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("", h.Entities)
	g.GET("/:entity", h.List)
	g.POST("/:entity", h.Create)
	g.GET("/:entity/:id", h.Get)
	g.PUT("/:entity/:id", h.Update)
	g.DELETE("/:entity/:id", h.Delete)
}

// CORS allows any origin.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (h *Handler) Entities(c *gin.Context) {
	names, err := h.Ledger.Entities()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, names)
}

func (h *Handler) List(c *gin.Context) {
	records, err := h.Ledger.List(c.Param("entity"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) Create(c *gin.Context) {
	var data map[string]any
	if err := c.ShouldBindJSON(&data); err != nil || data == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return
	}

	rec, err := h.Ledger.Create(c.Param("entity"), data)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) Get(c *gin.Context) {
	rec, err := h.Ledger.Get(c.Param("entity"), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) Update(c *gin.Context) {
	var data map[string]any
	if err := c.ShouldBindJSON(&data); err != nil || data == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return
	}

	rec, err := h.Ledger.Update(c.Param("entity"), c.Param("id"), data)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.Ledger.Delete(c.Param("entity"), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// fail maps ledger errors onto HTTP statuses. Unclassified errors are
// logged and answered with a generic message.
func (h *Handler) fail(c *gin.Context, err error) {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "problems": ve.Problems})
	case apperr.IsUnknownResource(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperr.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
	default:
		h.logger().Error("request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
