package mailstub

import (
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"

	_ "github.com/gti/penpot-e2e/docs"
	"github.com/gti/penpot-e2e/internal/logging"
)

// NewServer returns an echo instance serving store. An empty token leaves every route open.
func NewServer(store *Store, token string, log *zap.Logger) *echo.Echo {
	h := NewHandler(store)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(RequestLogger(logging.OrNop(log)))
	e.Use(echoMiddleware.Recover())

	e.GET("/healthz", h.Health)
	e.GET("/api/doc/*", echoSwagger.WrapHandler)

	auth := BearerAuth(token)

	users := e.Group("/gmail/v1/users/:user", auth)
	users.GET("/messages", h.ListMessages)
	users.GET("/messages/:id", h.GetMessage)

	stub := e.Group("/stub", auth)
	stub.POST("/messages", h.Deliver)
	stub.DELETE("/messages", h.Reset)

	return e
}
