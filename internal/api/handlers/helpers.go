package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playmatatu/billiards/internal/game"
)

// statusFor maps manager and rule errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrTableNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrNotComputerTurn), errors.Is(err, game.ErrNotAiming), errors.Is(err, game.ErrGameOver):
		return http.StatusConflict
	case errors.Is(err, game.ErrNoPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

// shotRejected reports whether Shoot refused the input itself rather than the
// table's state. Those are silent no-ops in the core.
func shotRejected(err error) bool {
	return errors.Is(err, game.ErrWeakShot) || errors.Is(err, game.ErrBadShot) || errors.Is(err, game.ErrNoCueBall)
}
