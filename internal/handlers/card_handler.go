package handlers

import (
	"net/http"

	"github.com/eventcard/backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type CardHandler struct {
	engine *services.TransactionService
	ledger *services.LedgerService
}

func NewCardHandler(engine *services.TransactionService, ledger *services.LedgerService) *CardHandler {
	return &CardHandler{
		engine: engine,
		ledger: ledger,
	}
}

// GetCard returns balance and status of a card
// @Summary Card balance
// @Description Unknown cards are reported with exists=false
// @Tags Cards
// @Produce json
// @Security BearerAuth
// @Param uid path string true "Card UID"
// @Success 200 {object} models.CardView
// @Router /cards/{uid} [get]
func (h *CardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	view, err := h.engine.GetCard(r.Context(), actor, actor.EventID, chi.URLParam(r, "uid"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, view)
}

// History lists the ledger entries of a card, newest first
// @Summary Card history
// @Tags Cards
// @Produce json
// @Security BearerAuth
// @Param uid path string true "Card UID"
// @Success 200 {array} models.LedgerEntry
// @Router /cards/{uid}/history [get]
func (h *CardHandler) History(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	entries, err := h.ledger.CardHistory(r.Context(), actor, actor.EventID, chi.URLParam(r, "uid"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, entries)
}

// Block stops sales and recharges on a card
// @Summary Block card
// @Tags Cards
// @Produce json
// @Security BearerAuth
// @Param uid path string true "Card UID"
// @Success 200 {object} models.CardView
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /cards/{uid}/block [put]
func (h *CardHandler) Block(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	view, err := h.engine.BlockCard(r.Context(), actor, actor.EventID, chi.URLParam(r, "uid"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, view)
}

// Unblock re-enables a blocked card
// @Summary Unblock card
// @Tags Cards
// @Produce json
// @Security BearerAuth
// @Param uid path string true "Card UID"
// @Success 200 {object} models.CardView
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /cards/{uid}/unblock [put]
func (h *CardHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	view, err := h.engine.UnblockCard(r.Context(), actor, actor.EventID, chi.URLParam(r, "uid"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, view)
}
