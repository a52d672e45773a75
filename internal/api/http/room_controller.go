package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/studyroom/internal/api/http/converter"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/service"
	"github.com/immxrtalbeast/studyroom/internal/session"
	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
)

// SessionServer runs a websocket session until it closes.
type SessionServer interface {
	Serve(ctx context.Context, conn session.Transport, user *domain.User, room *domain.Room) error
}

type UpgraderConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	// AllowOrigins limits cross-origin websocket upgrades. Empty allows any.
	AllowOrigins []string
}

type RoomController struct {
	rooms    service.RoomInteractor
	sessions SessionServer
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewRoomController(rooms service.RoomInteractor, sessions SessionServer, cfg UpgraderConfig, log *slog.Logger) *RoomController {
	if log == nil {
		log = slog.Default()
	}
	return &RoomController{
		rooms:    rooms,
		sessions: sessions,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     checkOrigin(cfg.AllowOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		// same host is always fine
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

func (c *RoomController) CreateRoom(ctx *gin.Context) {
	type request struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	room, err := c.rooms.CreateRoom(ctx.Request.Context(), req.Name, req.Description, currentUser(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"room": converter.RoomToApi(room)})
}

func (c *RoomController) ListRooms(ctx *gin.Context) {
	listings, err := c.rooms.ListRooms(ctx.Request.Context(), ctx.Query("search"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"rooms":        converter.ListingsToApi(listings),
		"search_query": ctx.Query("search"),
	})
}

func (c *RoomController) GlobalRoom(ctx *gin.Context) {
	user := currentUser(ctx)
	detail, err := c.rooms.VisitGlobal(ctx.Request.Context(), user)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, converter.DetailToApi(detail, user))
}

func (c *RoomController) GetRoom(ctx *gin.Context) {
	detail, err := c.rooms.RoomDetail(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, converter.DetailToApi(detail, currentUser(ctx)))
}

// JoinRoom is the page-load entry into a room.
func (c *RoomController) JoinRoom(ctx *gin.Context) {
	user := currentUser(ctx)
	detail, err := c.rooms.Visit(ctx.Request.Context(), ctx.Param("code"), user)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, converter.DetailToApi(detail, user))
}

func (c *RoomController) Messages(ctx *gin.Context) {
	limit := 0
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	messages, err := c.rooms.ChatHistory(ctx.Request.Context(), ctx.Param("code"), limit)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"messages": converter.MessagesToApi(messages)})
}

// Connect upgrades to a websocket session in the room. The room is resolved
// before the upgrade so unknown and expired rooms get a plain HTTP error.
// Anonymous callers are upgraded and closed straight away.
func (c *RoomController) Connect(ctx *gin.Context) {
	const op = "api.http.room.connect"
	log := c.log.With(slog.String("op", op), slog.String("room", ctx.Param("code")))

	room, err := c.rooms.ResolveRoom(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		writeError(ctx, err)
		return
	}

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Debug("websocket upgrade failed", sl.Err(err))
		return
	}

	if err := c.sessions.Serve(ctx.Request.Context(), conn, currentUser(ctx), room); err != nil {
		log.Info("session ended", sl.Err(err))
	}
}
