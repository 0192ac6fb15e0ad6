package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
)

// CORS allows the origins listed in CORS_ALLOWED_ORIGINS, or any origin when
// the key is empty.
func CORS() gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	origins := strings.TrimSpace(viper.GetString("CORS_ALLOWED_ORIGINS"))
	if origins == "" {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = strings.Split(origins, ",")
	}
	return cors.New(config)
}
