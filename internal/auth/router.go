package auth

import (
	"lodging/internal/shared/config"
	"lodging/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

type Router struct {
	controller *Controller
	config     *config.Config
}

func NewRouter(controller *Controller, cfg *config.Config) *Router {
	return &Router{
		controller: controller,
		config:     cfg,
	}
}

// SetupRoutes registers all auth routes. Operators are created by an
// admin; there is no self sign-up.
func (authRouter *Router) SetupRoutes(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		auth.POST("/login", authRouter.controller.Login)
		auth.POST("/refresh", authRouter.controller.RefreshToken)
		auth.POST("/logout", authRouter.controller.Logout)

		protected := auth.Group("")
		protected.Use(middleware.JWTAuthWithConfig(authRouter.config))
		{
			protected.PUT("/change-password", authRouter.controller.ChangePassword)
			protected.GET("/me", authRouter.controller.GetMe)

			admin := protected.Group("", middleware.RequireAdmin())
			admin.POST("/register", authRouter.controller.Register)
			admin.GET("/operators", authRouter.controller.ListOperators)
			admin.PATCH("/operators/:id", authRouter.controller.SetOperatorActive)
		}
	}
}
