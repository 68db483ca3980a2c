package middleware

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// containers and media are already compressed
var excludedExtensions = []string{
	".zip", ".png", ".gif", ".jpeg", ".jpg", ".mp4", ".mp3", ".pdf", ".tar.gz",
}

func Gzip() gin.HandlerFunc {
	return gzip.Gzip(
		gzip.DefaultCompression,
		gzip.WithExcludedExtensions(excludedExtensions),
	)
}
