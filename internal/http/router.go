// README: HTTP router registration.
package http

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dishpatch/internal/http/handlers"
	"dishpatch/internal/http/middleware"
	"dishpatch/internal/modules/order"
)

func NewRouter(orderService *order.Service, log *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logging(log), middleware.Recovery(log))

	orderHandler := handlers.NewOrderHandler(orderService)
	r.POST("/orders", orderHandler.Create)
	r.GET("/orders", orderHandler.List)
	r.GET("/orders/:id", orderHandler.Get)
	r.PUT("/orders/:id/status", orderHandler.UpdateStatus)
	r.PUT("/orders/:id/courier", orderHandler.AssignCourier)
	r.POST("/orders/:id/verify-pin", orderHandler.VerifyPIN)

	r.GET("/health", func(c *gin.Context) {
		c.String(200, "OK")
	})

	return r
}
