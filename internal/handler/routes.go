package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all API routes
func RegisterRoutes(e *echo.Echo, loanHandler *LoanHandler, paymentHandler *PaymentHandler, accrualHandler *AccrualHandler, wsHandler *WebSocketHandler) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// API version 1
	api := e.Group("/api/v1")

	// Loan routes
	loans := api.Group("/loans")
	loans.POST("", loanHandler.CreateLoan)
	loans.GET("/:id", loanHandler.GetLoan)
	loans.PUT("/:id", loanHandler.UpdateLoan)
	loans.POST("/:id/approve", loanHandler.ApproveLoan)
	loans.POST("/:id/reject", loanHandler.RejectLoan)
	loans.GET("/:id/schedule", loanHandler.GetSchedule)
	loans.GET("/:id/outstanding", paymentHandler.GetOutstanding)
	loans.POST("/:id/payments", paymentHandler.CreatePayment)

	// Payment lookup by idempotency key
	api.GET("/payments/:key", paymentHandler.GetPayment)

	// Schedule preview (non-binding quote)
	api.POST("/schedule/preview", loanHandler.PreviewSchedule)

	// Internal scheduler endpoint; not part of the public API surface.
	e.POST("/internal/accrual/run", accrualHandler.RunAccrual)

	// WebSocket notifications
	e.GET("/ws", wsHandler.HandleWS)
}
