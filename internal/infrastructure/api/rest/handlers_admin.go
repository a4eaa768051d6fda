package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/oasst/treemanager/internal/application/export"
	"github.com/oasst/treemanager/internal/application/maintenance"
)

// AdminHandlers serves the operator-facing maintenance, purge, and export
// admin surface - every route here sits behind RequireAdmin.
type AdminHandlers struct {
	Maintenance *maintenance.Maintenance
	Exporter    *export.Exporter
}

func NewAdminHandlers(m *maintenance.Maintenance, e *export.Exporter) *AdminHandlers {
	return &AdminHandlers{Maintenance: m, Exporter: e}
}

// HandleEnsureTreeStates serves POST /api/v1/admin/maintenance/ensure-tree-states.
func (h *AdminHandlers) HandleEnsureTreeStates(c *gin.Context) {
	if err := h.Maintenance.EnsureTreeStates(c.Request.Context()); err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleRetryScoringFailed serves POST /api/v1/admin/maintenance/retry-scoring-failed.
func (h *AdminHandlers) HandleRetryScoringFailed(c *gin.Context) {
	if err := h.Maintenance.RetryScoringFailed(c.Request.Context()); err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type purgeUserRequest struct {
	PurgeInitialPrompts bool `json:"purge_initial_prompts"`
}

// HandlePurgeUser serves POST /api/v1/admin/users/:user_id/purge, implementing
// the right-to-be-forgotten sweep.
func (h *AdminHandlers) HandlePurgeUser(c *gin.Context) {
	userIDParam, ok := getParam(c, "user_id")
	if !ok {
		return
	}
	userID, err := uuid.Parse(userIDParam)
	if err != nil {
		respondError(c, http.StatusBadRequest, "user_id must be a valid UUID")
		return
	}

	var req purgeUserRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	if err := h.Maintenance.PurgeUserMessages(c.Request.Context(), userID, req.PurgeInitialPrompts); err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleExportReady serves GET /api/v1/admin/export, bundling every tree
// currently sitting in READY_FOR_EXPORT.
func (h *AdminHandlers) HandleExportReady(c *gin.Context) {
	ids, err := export.ReadyTreeIDs(c.Request.Context(), h.Maintenance.Trees)
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	opts := export.Options{
		ReviewedOnly: getQuery(c, "reviewed_only", "true") == "true",
		Gzip:         getQuery(c, "gzip", "false") == "true",
	}

	data, err := h.Exporter.ExportTrees(c.Request.Context(), ids, opts)
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	contentType := "application/json"
	if opts.Gzip {
		contentType = "application/gzip"
	}
	c.Data(http.StatusOK, contentType, data)
}

// HandleExportTrees serves POST /api/v1/admin/export with an explicit set of
// tree ids, for targeted re-exports.
func (h *AdminHandlers) HandleExportTrees(c *gin.Context) {
	var req struct {
		TreeIDs        []uuid.UUID `json:"tree_ids" binding:"required"`
		ReviewedOnly   bool        `json:"reviewed_only"`
		IncludeDeleted bool        `json:"include_deleted"`
		Gzip           bool        `json:"gzip"`
	}
	if err := bindJSON(c, &req); err != nil {
		return
	}

	data, err := h.Exporter.ExportTrees(c.Request.Context(), req.TreeIDs, export.Options{
		ReviewedOnly:   req.ReviewedOnly,
		IncludeDeleted: req.IncludeDeleted,
		Gzip:           req.Gzip,
	})
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	contentType := "application/json"
	if req.Gzip {
		contentType = "application/gzip"
	}
	c.Data(http.StatusOK, contentType, data)
}
