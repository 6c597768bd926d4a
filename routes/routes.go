package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"checkin-backend/controllers"
	"checkin-backend/middleware"
	"checkin-backend/services"
)

// Deps bundles what SetupRouter wires into handlers.
type Deps struct {
	Checkin  *controllers.CheckinController
	Search   *controllers.SearchController
	Guests   *controllers.GuestController
	Sessions services.Authorizer

	CORSOrigins []string
	Log         *slog.Logger
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(d.Log))

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	allowCredentials := true
	for _, origin := range origins {
		if origin == "*" {
			allowCredentials = false
			break
		}
	}

	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: allowCredentials,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	scanner := r.Group("/api/scanner")
	{
		// authorizes inside the service, after body validation
		scanner.POST("/checkin", d.Checkin.Submit)

		authed := scanner.Group("", middleware.RequireScannerSession(d.Sessions))
		{
			authed.GET("/search", d.Search.Search)
			authed.GET("/guests", d.Guests.GetGuests)
			authed.GET("/stats", d.Guests.GetStats)
			authed.GET("/session", controllers.GetSession)
		}
	}

	return r
}
