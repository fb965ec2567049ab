package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/eventcard/backend/internal/models"
	"github.com/eventcard/backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type TransactionHandler struct {
	engine    *services.TransactionService
	ledger    *services.LedgerService
	receipts  *services.ReceiptService
	validator *services.ValidationHelper
}

func NewTransactionHandler(engine *services.TransactionService, ledger *services.LedgerService, receipts *services.ReceiptService) *TransactionHandler {
	return &TransactionHandler{
		engine:    engine,
		ledger:    ledger,
		receipts:  receipts,
		validator: services.NewValidationHelper(),
	}
}

// Sale debits a card
// @Summary Card sale
// @Description Debit a card by a fixed amount or by a cart priced from the event catalog
// @Tags Transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.SaleRequest true "Sale request"
// @Success 200 {object} models.TransactionResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /transactions/sale [post]
func (h *TransactionHandler) Sale(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req models.SaleRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.engine.Sale(r.Context(), actor, actor.EventID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, result)
}

// Recharge credits a card
// @Summary Card recharge
// @Tags Transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.RechargeRequest true "Recharge request"
// @Success 200 {object} models.TransactionResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /transactions/recharge [post]
func (h *TransactionHandler) Recharge(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req models.RechargeRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.engine.Recharge(r.Context(), actor, actor.EventID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, result)
}

// Refund returns part of a card balance to cash
// @Summary Partial refund
// @Tags Transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.RefundRequest true "Refund request"
// @Success 200 {object} models.TransactionResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /transactions/refund [post]
func (h *TransactionHandler) Refund(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req models.RefundRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.engine.Refund(r.Context(), actor, actor.EventID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, result)
}

// RefundTotal returns the whole card balance to cash
// @Summary Full refund
// @Tags Transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.RefundTotalRequest true "Full refund request"
// @Success 200 {object} models.TransactionResult
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /transactions/refund-total [post]
func (h *TransactionHandler) RefundTotal(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req models.RefundTotalRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.engine.RefundTotal(r.Context(), actor, actor.EventID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, result)
}

// VoidSale reverses a sale
// @Summary Void a sale
// @Description Credit back a SALE entry. A sale can only be voided once.
// @Tags Transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param entryId path string true "Sale entry ID"
// @Param request body models.VoidRequest false "Void request"
// @Success 200 {object} models.TransactionResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /transactions/{entryId}/void [post]
func (h *TransactionHandler) VoidSale(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req models.VoidRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.engine.VoidSale(r.Context(), actor, actor.EventID, chi.URLParam(r, "entryId"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, result)
}

// ListTransactions lists ledger entries of the event
// @Summary List transactions
// @Description Sellers and cashiers only see their own entries
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param type query string false "Entry type" Enums(RELOAD, SALE, VOID, REFUND)
// @Param cardUid query string false "Card UID"
// @Param actorId query string false "Actor ID"
// @Param since query string false "RFC3339 lower bound"
// @Param limit query int false "Maximum entries"
// @Success 200 {array} models.LedgerEntry
// @Failure 400 {object} services.ErrorResponse
// @Router /transactions [get]
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := models.EntryFilter{
		EventID: actor.EventID,
		ActorID: q.Get("actorId"),
		CardUID: q.Get("cardUid"),
		Type:    models.EntryType(q.Get("type")),
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			services.SendErrorResponse(w, "Invalid since parameter", http.StatusBadRequest, nil)
			return
		}
		filter.Since = t
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			services.SendErrorResponse(w, "Invalid limit parameter", http.StatusBadRequest, nil)
			return
		}
		filter.Limit = n
	}

	entries, err := h.ledger.ListEntries(r.Context(), actor, filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, entries)
}

// Receipt renders an entry as a QR code
// @Summary Transaction receipt
// @Tags Transactions
// @Produce png
// @Security BearerAuth
// @Param entryId path string true "Entry ID"
// @Success 200 {file} binary
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions/{entryId}/receipt.png [get]
func (h *TransactionHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	data, err := h.receipts.ReceiptPNG(r.Context(), actor, actor.EventID, chi.URLParam(r, "entryId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// SalesSummary aggregates the caller's sales of one day by product
// @Summary Seller daily summary
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param date query string false "Day as YYYY-MM-DD, defaults to today (UTC)"
// @Success 200 {array} models.ProductSummary
// @Failure 400 {object} services.ErrorResponse
// @Router /sales/summary [get]
func (h *TransactionHandler) SalesSummary(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	day := time.Now().UTC()
	if date := r.URL.Query().Get("date"); date != "" {
		t, err := time.Parse(time.DateOnly, date)
		if err != nil {
			services.SendErrorResponse(w, "Invalid date parameter", http.StatusBadRequest, nil)
			return
		}
		day = t
	}

	summary, err := h.ledger.SalesSummary(r.Context(), actor, actor.EventID, day)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, summary)
}
