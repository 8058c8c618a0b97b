// router/router.go

package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aegis-authz/aegis/controller"
	"github.com/aegis-authz/aegis/middleware"
	"github.com/aegis-authz/aegis/service"
)

func SetupRouter(
	controllers *controller.Controllers,
	accessService service.IAccessService,
	jwtSecret string,
	rateLimitRequests int,
	rateLimitDuration time.Duration,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.RateLimiter(rateLimitRequests, rateLimitDuration))
	router.Use(middleware.AuthMiddleware(jwtSecret))

	api := router.Group("/api/v1")

	// Evaluation and audit queries are open to any authenticated caller.
	controllers.Access.RegisterRoutes(api)
	controllers.Audit.RegisterRoutes(api)

	// Policy administration is guarded by the engine's own decision path.
	admin := api.Group("")
	admin.Use(middleware.AdminGuard(accessService))
	controllers.Policy.RegisterRoutes(admin)

	return router
}
