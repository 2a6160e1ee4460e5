package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prasenjit/mockforge/internal/catalog"
	"github.com/prasenjit/mockforge/internal/models"
)

const maxImportBody = 10 << 20

// ListMocks returns one page of mocks
func (h *Handler) ListMocks(c *gin.Context) {
	opts := catalog.ListOptions{Query: c.Query("q")}

	var err error
	if opts.Page, err = intQuery(c, "page"); err != nil {
		h.writeError(c, err)
		return
	}
	if opts.PageSize, err = intQuery(c, "pageSize"); err != nil {
		h.writeError(c, err)
		return
	}

	page, err := h.catalog.List(c.Request.Context(), opts)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// CreateMock creates a new mock
func (h *Handler) CreateMock(c *gin.Context) {
	var input models.MockInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.bindError(c, err)
		return
	}

	def, err := h.catalog.Create(c.Request.Context(), &input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, def)
}

// GetMock returns a single mock
func (h *Handler) GetMock(c *gin.Context) {
	def, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

// UpdateMock applies a partial update
func (h *Handler) UpdateMock(c *gin.Context) {
	var update models.MockUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		h.bindError(c, err)
		return
	}

	def, err := h.catalog.Update(c.Request.Context(), c.Param("id"), &update)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

// DeleteMock deletes a mock
func (h *Handler) DeleteMock(c *gin.Context) {
	if err := h.catalog.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

// BulkDeleteMocks deletes every listed mock
func (h *Handler) BulkDeleteMocks(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	n, err := h.catalog.DeleteMany(c.Request.Context(), req.IDs)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// CloneMock copies a mock
func (h *Handler) CloneMock(c *gin.Context) {
	def, err := h.catalog.Clone(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, def)
}

// ExportMocks downloads the whole catalog
func (h *Handler) ExportMocks(c *gin.Context) {
	data, err := h.importer.Export(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="mockforge-export.json"`)
	c.Data(http.StatusOK, "application/json", data)
}

// ImportMocks creates mocks from a JSON export
func (h *Handler) ImportMocks(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBody))
	if err != nil {
		h.bindError(c, err)
		return
	}

	created, err := h.importer.ImportJSON(c.Request.Context(), data)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"count": len(created), "items": created})
}

// ImportOpenAPI creates one mock per operation of an OpenAPI document
func (h *Handler) ImportOpenAPI(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBody))
	if err != nil {
		h.bindError(c, err)
		return
	}

	created, err := h.importer.ImportOpenAPI(c.Request.Context(), data, c.Query("basePath"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"count": len(created), "items": created})
}

// intQuery reads an optional integer query parameter
func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, models.NewValidationError(name, "must be an integer")
	}
	return n, nil
}
