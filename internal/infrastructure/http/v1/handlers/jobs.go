package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// JobsHandler exposes the maintenance jobs as admin-triggered endpoints.
// The worker runs the same jobs on a schedule; these routes exist for
// manual runs after incidents and for operational tooling.
type JobsHandler struct {
	snapshotJob  *ledger.SnapshotJob
	gapRepairJob *ledger.GapRepairJob
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(snapshotJob *ledger.SnapshotJob, gapRepairJob *ledger.GapRepairJob) *JobsHandler {
	return &JobsHandler{
		snapshotJob:  snapshotJob,
		gapRepairJob: gapRepairJob,
	}
}

// RunCarryForward handles POST /api/v1/jobs/carry-forward.
func (h *JobsHandler) RunCarryForward(c *gin.Context) {
	result, err := h.snapshotJob.RunDailySnapshot(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.CarryForwardResponse{
		Processed: result.Processed,
		Skipped:   result.Skipped,
	})
}

// RunGapRepair handles POST /api/v1/jobs/gap-repair.
// An optional product_id query parameter limits the run to one product.
func (h *JobsHandler) RunGapRepair(c *gin.Context) {
	var productID *id.ID
	if raw := c.Query("product_id"); raw != "" {
		parsed, err := id.Parse(raw)
		if err != nil {
			_ = c.Error(apperror.NewValidation("invalid product_id").WithDetail("product_id", raw))
			return
		}
		productID = &parsed
	}

	result, err := h.gapRepairJob.RunGapRepair(c.Request.Context(), productID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.GapRepairResponse{
		FilledRows: result.FilledRows,
	})
}
