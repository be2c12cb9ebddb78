package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/layer-3/keygate/service"
)

// SetupRouter sets up the Gin router.
func SetupRouter(authService *service.AuthService) *gin.Engine {
	router := gin.Default()

	handlers := NewAuthHandlers(authService)

	auth := router.Group("/auth")
	{
		auth.POST("/register/begin", handlers.BeginRegistration)
		auth.POST("/register/finish", handlers.FinishRegistration)
		auth.POST("/assert/begin", handlers.BeginAssertion)
		auth.POST("/assert/finish", handlers.FinishAssertion)
		auth.POST("/password", handlers.PasswordLogin)
		auth.POST("/pin", handlers.PINLogin)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
	}

	api := router.Group("/api")
	api.Use(AuthMiddleware(authService))
	{
		api.GET("/me", handlers.Me)
		api.GET("/authorize", handlers.Authorize)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
