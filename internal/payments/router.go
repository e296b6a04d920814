package payments

import (
	"github.com/gin-gonic/gin"
)

// SetupPaymentRoutes configures payment routes. The routes are registered
// even when payments are disabled so clients get 503 instead of 404.
func SetupPaymentRoutes(public *gin.RouterGroup, admin *gin.RouterGroup, controller *Controller, optionalAuth gin.HandlerFunc) {
	public.POST("/reservations/:id/payments", optionalAuth, controller.InitiatePayment) // POST /api/v1/reservations/:id/payments

	payments := public.Group("/payments")
	{
		payments.POST("/callback", controller.Callback)         // POST /api/v1/payments/callback
		payments.GET("/sessions/:token", controller.GetSession) // GET /api/v1/payments/sessions/:token
	}

	admin.GET("/reservations/:id/payment-events", controller.ListEvents) // GET /api/v1/admin/reservations/:id/payment-events
}
