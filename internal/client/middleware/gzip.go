package middleware

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// websocket upgrades need the raw writer; metrics are compressed by promhttp itself
var excludedPaths = []string{
	"/v1/sync/events",
	"/metrics",
}

func Gzip() gin.HandlerFunc {
	return gzip.Gzip(
		gzip.DefaultCompression,
		gzip.WithExcludedPaths(excludedPaths),
	)
}
