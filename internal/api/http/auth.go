package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/repository"
	"github.com/immxrtalbeast/studyroom/internal/service"
	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
)

const (
	userHeader = "X-User-ID"
	userQuery  = "user_id"
	userKey    = "studyroom.user"
)

// Identity resolves the caller from the X-User-ID header, or the user_id
// query parameter for browser websockets, which cannot set headers. The
// header is trusted: it is set by the authenticating proxy in front of the
// service. Requests without a known user continue anonymously.
func Identity(users service.UserInteractor, log *slog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		raw := strings.TrimSpace(ctx.GetHeader(userHeader))
		if raw == "" {
			raw = strings.TrimSpace(ctx.Query(userQuery))
		}
		if raw == "" {
			ctx.Next()
			return
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			ctx.Next()
			return
		}

		user, err := users.GetUser(ctx.Request.Context(), id)
		switch {
		case err == nil:
			ctx.Set(userKey, user)
		case errors.Is(err, repository.ErrUserNotFound):
		default:
			log.Error("failed to resolve identity", slog.String("user_id", id.String()), sl.Err(err))
		}
		ctx.Next()
	}
}

// RequireUser rejects anonymous requests.
func RequireUser() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if currentUser(ctx) == nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		ctx.Next()
	}
}

func currentUser(ctx *gin.Context) *domain.User {
	v, ok := ctx.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*domain.User)
	return user
}

// writeError maps service and repository errors onto HTTP statuses.
func writeError(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, repository.ErrRoomNotFound):
		status, message = http.StatusNotFound, "room not found"
	case errors.Is(err, repository.ErrUserNotFound):
		status, message = http.StatusNotFound, "user not found"
	case errors.Is(err, service.ErrRoomExpired):
		status, message = http.StatusGone, "room has expired due to inactivity"
	case errors.Is(err, repository.ErrUserEmailExists):
		status, message = http.StatusConflict, "email already registered"
	}

	ctx.JSON(status, gin.H{"error": message})
}
