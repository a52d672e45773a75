package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/api/http/converter"
	"github.com/immxrtalbeast/studyroom/internal/service"
)

type UserController struct {
	users         service.UserInteractor
	rooms         service.RoomInteractor
	notifications service.NotificationInteractor
}

func NewUserController(
	users service.UserInteractor,
	rooms service.RoomInteractor,
	notifications service.NotificationInteractor,
) *UserController {
	return &UserController{users: users, rooms: rooms, notifications: notifications}
}

func (c *UserController) CreateUser(ctx *gin.Context) {
	type request struct {
		Name  string `json:"name" binding:"required"`
		Email string `json:"email"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := c.users.CreateUser(ctx.Request.Context(), req.Name, req.Email)
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"user": user})
}

func (c *UserController) GetUser(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("userID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	user, err := c.users.GetUser(ctx.Request.Context(), id)
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": user})
}

// MyRooms lists the rooms the caller is currently active in.
func (c *UserController) MyRooms(ctx *gin.Context) {
	rooms, err := c.rooms.UserRooms(ctx.Request.Context(), currentUser(ctx).ID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"rooms": converter.RoomsToApi(rooms)})
}

// UpdateMe changes the caller's display name.
func (c *UserController) UpdateMe(ctx *gin.Context) {
	type request struct {
		Name string `json:"name" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user := *currentUser(ctx)
	user.Name = req.Name
	if err := c.users.UpdateUser(ctx.Request.Context(), &user); err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": user})
}

func (c *UserController) MyNotifications(ctx *gin.Context) {
	list, err := c.notifications.ListNotifications(ctx.Request.Context(), currentUser(ctx).ID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"notifications": converter.NotificationsToApi(list)})
}
