package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/studyroom/internal/service"
)

type Controllers struct {
	Rooms *RoomController
	Users *UserController
	RTC   *RTCController
}

func SetupRouter(c Controllers, identities service.UserInteractor, allowOrigins []string, log *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	config := cors.DefaultConfig()
	if len(allowOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowOrigins
		config.AllowCredentials = true
	}
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
		userHeader,
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	router.Use(cors.New(config))
	router.Use(Identity(identities, log))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	if c.RTC != nil {
		api.GET("/rtc/config", c.RTC.Config)
	}

	if c.Users != nil {
		users := api.Group("/users")
		users.POST("/create", c.Users.CreateUser)
		users.PATCH("/me", RequireUser(), c.Users.UpdateMe)
		users.GET("/me/rooms", RequireUser(), c.Users.MyRooms)
		users.GET("/me/notifications", RequireUser(), c.Users.MyNotifications)
		users.GET("/:userID", RequireUser(), c.Users.GetUser)
	}

	if c.Rooms != nil {
		rooms := api.Group("/rooms", RequireUser())
		rooms.POST("/create", c.Rooms.CreateRoom)
		rooms.GET("", c.Rooms.ListRooms)
		rooms.GET("/global", c.Rooms.GlobalRoom)
		rooms.GET("/:code", c.Rooms.GetRoom)
		rooms.POST("/:code/join", c.Rooms.JoinRoom)
		rooms.GET("/:code/messages", c.Rooms.Messages)

		// identity is checked inside the session so anonymous sockets are
		// closed after the upgrade
		router.GET("/ws/rooms/:code", c.Rooms.Connect)
	}

	return router
}
