package handlers

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts the ledger API on r. Authentication is applied by the caller.
func RegisterRoutes(r chi.Router, tx *TransactionHandler, cards *CardHandler) {
	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", tx.ListTransactions)
		r.Post("/sale", tx.Sale)
		r.Post("/recharge", tx.Recharge)
		r.Post("/refund", tx.Refund)
		r.Post("/refund-total", tx.RefundTotal)
		r.Post("/{entryId}/void", tx.VoidSale)
		r.Get("/{entryId}/receipt.png", tx.Receipt)
	})

	r.Get("/sales/summary", tx.SalesSummary)

	r.Route("/cards/{uid}", func(r chi.Router) {
		r.Get("/", cards.GetCard)
		r.Get("/history", cards.History)
		r.Put("/block", cards.Block)
		r.Put("/unblock", cards.Unblock)
	})
}
