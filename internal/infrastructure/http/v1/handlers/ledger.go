package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// LedgerHandler serves movement and snapshot reads plus the write
// operations driven by the invoicing application.
type LedgerHandler struct {
	service      *ledger.Service
	recalculator *ledger.Recalculator
}

// NewLedgerHandler creates a ledger handler.
func NewLedgerHandler(service *ledger.Service, recalculator *ledger.Recalculator) *LedgerHandler {
	return &LedgerHandler{
		service:      service,
		recalculator: recalculator,
	}
}

// RegisterMovement handles POST /api/v1/movements.
func (h *LedgerHandler) RegisterMovement(c *gin.Context) {
	var req dto.RegisterMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return
	}

	productID, err := id.Parse(req.ProductID)
	if err != nil {
		_ = c.Error(apperror.NewValidation("invalid product_id").WithDetail("product_id", req.ProductID))
		return
	}

	invoiceDate, err := time.Parse(time.RFC3339, req.InvoiceDate)
	if err != nil {
		// Accept bare dates too; the invoicing app sends both forms.
		invoiceDate, err = time.ParseInLocation(dateLayout, req.InvoiceDate, time.UTC)
		if err != nil {
			_ = c.Error(apperror.NewValidation("invalid invoice_date").WithDetail("invoice_date", req.InvoiceDate))
			return
		}
	}

	change, err := types.NewFromString(req.QuantityChange)
	if err != nil {
		_ = c.Error(apperror.NewValidation("invalid quantity_change").WithDetail("quantity_change", req.QuantityChange))
		return
	}

	var unitCost *types.Money
	if req.UnitCost != nil {
		cost, err := types.NewFromString(*req.UnitCost)
		if err != nil {
			_ = c.Error(apperror.NewValidation("invalid unit_cost").WithDetail("unit_cost", *req.UnitCost))
			return
		}
		unitCost = &cost
	}

	movement, err := h.recalculator.RegisterMovement(c.Request.Context(), productID, req.InvoiceID, invoiceDate, change, unitCost)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToMovementResponse(movement))
}

// Recalculate handles POST /api/v1/movements/recalculate.
func (h *LedgerHandler) Recalculate(c *gin.Context) {
	var req dto.RecalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return
	}

	productID, err := id.Parse(req.ProductID)
	if err != nil {
		_ = c.Error(apperror.NewValidation("invalid product_id").WithDetail("product_id", req.ProductID))
		return
	}

	// The wire format uses uppercase actions; the domain constants are
	// lowercase.
	action := ledger.Action(strings.ToLower(req.Action))

	domainReq := ledger.RecalculateRequest{
		ProductID: productID,
		InvoiceID: req.InvoiceID,
		Action:    action,
	}

	if action == ledger.ActionEdit {
		if req.NewQuantityChange == nil {
			_ = c.Error(apperror.NewValidation("new_quantity_change is required for EDIT"))
			return
		}
		change, err := types.NewFromString(*req.NewQuantityChange)
		if err != nil {
			_ = c.Error(apperror.NewValidation("invalid new_quantity_change").WithDetail("new_quantity_change", *req.NewQuantityChange))
			return
		}
		domainReq.NewQuantityChange = change

		if req.NewUnitCost != nil {
			cost, err := types.NewFromString(*req.NewUnitCost)
			if err != nil {
				_ = c.Error(apperror.NewValidation("invalid new_unit_cost").WithDetail("new_unit_cost", *req.NewUnitCost))
				return
			}
			domainReq.NewUnitCost = &cost
		}
	}

	if err := h.recalculator.Recalculate(c.Request.Context(), domainReq); err != nil {
		_ = c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Position handles GET /api/v1/products/:product_id/position?date=YYYY-MM-DD.
// Without a date it returns the position as of today.
func (h *LedgerHandler) Position(c *gin.Context) {
	productID, ok := parseIDParam(c, "product_id")
	if !ok {
		return
	}

	date, ok := parseDateQuery(c, "date")
	if !ok {
		return
	}
	if date.IsZero() {
		date = ledger.DateOf(time.Now().UTC())
	}

	snapshot, err := h.service.PositionAt(c.Request.Context(), productID, date)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.ToSnapshotResponse(snapshot))
}

// Movements handles GET /api/v1/products/:product_id/movements.
func (h *LedgerHandler) Movements(c *gin.Context) {
	productID, ok := parseIDParam(c, "product_id")
	if !ok {
		return
	}

	filter := ledger.MovementFilter{}

	from, ok := parseDateQuery(c, "from")
	if !ok {
		return
	}
	if !from.IsZero() {
		filter.FromDate = &from
	}

	to, ok := parseDateQuery(c, "to")
	if !ok {
		return
	}
	if !to.IsZero() {
		filter.ToDate = &to
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			_ = c.Error(apperror.NewValidation("invalid limit").WithDetail("limit", raw))
			return
		}
		filter.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			_ = c.Error(apperror.NewValidation("invalid offset").WithDetail("offset", raw))
			return
		}
		filter.Offset = offset
	}

	movements, err := h.service.MovementHistory(c.Request.Context(), productID, filter)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": dto.ToMovementResponses(movements),
		"count": len(movements),
	})
}

// Snapshots handles GET /api/v1/products/:product_id/snapshots?from=...&to=...
func (h *LedgerHandler) Snapshots(c *gin.Context) {
	productID, ok := parseIDParam(c, "product_id")
	if !ok {
		return
	}

	from, ok := parseDateQuery(c, "from")
	if !ok {
		return
	}
	to, ok := parseDateQuery(c, "to")
	if !ok {
		return
	}
	if from.IsZero() || to.IsZero() {
		_ = c.Error(apperror.NewValidation("from and to query parameters are required"))
		return
	}

	snapshots, err := h.service.SnapshotRange(c.Request.Context(), productID, from, to)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": dto.ToSnapshotResponses(snapshots),
		"count": len(snapshots),
	})
}
