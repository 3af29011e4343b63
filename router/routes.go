package router

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/gopos/handler"
	"github.com/mstgnz/gopos/infra/config"
	"github.com/mstgnz/gopos/infra/opensearch"
	"github.com/mstgnz/gopos/pos"

	// Import for side-effect registration
	_ "github.com/mstgnz/gopos/pos/estpos"
	_ "github.com/mstgnz/gopos/pos/garanti"
	_ "github.com/mstgnz/gopos/pos/posnet"
	_ "github.com/mstgnz/gopos/pos/vakifbank"
)

// Routes registers all API routes
func Routes(r chi.Router, accounts *config.AccountConfig, osLogger *opensearch.Logger) {
	validate := validator.New()

	// Avoid typed-nil interfaces when OpenSearch is disabled
	var txLogger pos.TransactionLogger
	var queryLogger handler.LoggerInterface
	if osLogger != nil {
		txLogger = osLogger
		queryLogger = osLogger
	}

	paymentService := pos.NewPaymentService(txLogger)
	paymentHandler := handler.NewPaymentHandler(paymentService, accounts, validate)
	configHandler := handler.NewConfigHandler(accounts, validate)
	logsHandler := handler.NewLogsHandler(queryLogger)

	// Payment routes
	r.Route("/payments", func(r chi.Router) {
		r.Route("/{bank}", func(r chi.Router) {
			r.Post("/", paymentHandler.ProcessPayment)
			r.Post("/capture", paymentHandler.CapturePayment)
			r.Post("/cancel", paymentHandler.CancelPayment)
			r.Post("/refund", paymentHandler.RefundPayment)
			r.Get("/status/{orderID}", paymentHandler.GetPaymentStatus)
			r.Get("/history/{orderID}", paymentHandler.GetPaymentHistory)
		})
	})

	// Callback routes for 3D Secure payments
	r.Route("/callback", func(r chi.Router) {
		r.HandleFunc("/{bank}", paymentHandler.HandleCallback)
	})

	// Merchant account configuration routes
	r.Route("/config", func(r chi.Router) {
		r.Get("/banks", configHandler.GetBanks)
		r.Get("/stats", configHandler.GetStats)
		r.Route("/{bank}", func(r chi.Router) {
			r.Post("/", configHandler.SetAccount)
			r.Get("/", configHandler.GetAccount)
			r.Delete("/", configHandler.DeleteAccount)
			r.Get("/fields", configHandler.GetRequiredFields)
		})
	})

	// Transaction log routes
	r.Route("/logs", func(r chi.Router) {
		r.Route("/{bank}", func(r chi.Router) {
			r.Get("/", logsHandler.ListLogs)
			r.Get("/stats", logsHandler.GetBankStats)
		})
	})
}
