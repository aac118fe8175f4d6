package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Ping is the liveness endpoint.
func Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "auth API server is running",
	})
}
