package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hummify/hummify-backend/internal/feed"
	"github.com/hummify/hummify-backend/internal/hum"
	"github.com/hummify/hummify-backend/internal/platform/database"
	"github.com/hummify/hummify-backend/internal/user"
)

// SetupRoutes 注册项目的所有API路由
func SetupRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"redis":   database.IsRedisHealthy(),
				"matcher": database.IsMatcherHealthy(),
			})
		})

		// 身份网关相关的路由组 /api/auth
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/signup", user.HandleSignup)
			authRoutes.POST("/login", user.HandleLogin)
			authRoutes.POST("/logout", user.CurrentUserMiddleware(), user.HandleLogout)
			authRoutes.GET("/profile", user.CurrentUserMiddleware(), user.RequireUserMiddleware(), user.HandleGetProfile)
			authRoutes.PUT("/profile", user.CurrentUserMiddleware(), user.RequireUserMiddleware(), user.HandleUpdateProfile)
		}

		// 哼唱相关的路由组 /api/hums
		humRoutes := api.Group("/hums")
		humRoutes.Use(user.CurrentUserMiddleware())
		{
			// 读路径：匿名可访问，登录后带个性化的点赞标注
			humRoutes.GET("/feed", feed.HandleFeed)
			humRoutes.GET("/profile/:id", hum.HandleGetProfile)

			// 写路径：一律要求已登录
			authed := humRoutes.Group("")
			authed.Use(user.RequireUserMiddleware())
			{
				authed.POST("", hum.HandleUpload)
				authed.POST("/:id/like", hum.HandleToggleLike)
				authed.POST("/:id/comments", hum.HandleAddComment)
				authed.POST("/:id/remix", hum.HandleRemix)

				// 识别服务代理端点
				authed.POST("/upload-and-match", feed.HandleUploadAndMatch)
				authed.POST("/remix", feed.HandleRemixProxy)
				authed.POST("/sync-profile", feed.HandleSyncProfile)
			}
		}
	}
}
