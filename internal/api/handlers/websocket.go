package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/playmatatu/billiards/internal/ws"
)

// HandleTableWebSocket streams a table's frames and events and accepts commands.
func HandleTableWebSocket() gin.HandlerFunc {
	return ws.HandleWebSocket
}
