package server

import (
	"net/http"
	"time"

	"messenger/internal/auth"
	"messenger/internal/config"
	"messenger/internal/delivery"
	"messenger/internal/metrics"
	"messenger/internal/mw"
	"messenger/internal/presence"
	"messenger/internal/store"
	"messenger/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, db *gorm.DB, h *Handler, reg *presence.Registry, router *delivery.Router, msgStore store.MessageStore) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")

	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg, db))

	authed.GET("/me", h.Profile)
	authed.PATCH("/me", h.UpdateProfile)

	authed.GET("/messages/:userID", h.Conversation)

	authed.POST("/groups", h.CreateGroup)
	authed.GET("/groups", h.ListGroups)
	authed.GET("/groups/:id", h.GetGroup)
	authed.GET("/groups/:id/messages", h.GroupMessages)
	authed.POST("/groups/:id/members", h.AddGroupMember)
	authed.DELETE("/groups/:id/members/:userID", h.RemoveGroupMember)

	authed.POST("/stories", h.CreateStory)
	authed.GET("/stories", h.ListStories)
	authed.GET("/stories/:id", h.GetStory)
	authed.POST("/stories/:id/view", h.ViewStory)
	authed.DELETE("/stories/:id", h.DeleteStory)

	authed.POST("/contacts", h.SaveContact)
	authed.GET("/contacts", h.ListContacts)
	authed.DELETE("/contacts/:id", h.DeleteContact)

	authed.GET("/wallpapers", h.ListWallpapers)
	authed.POST("/wallpapers", h.CreateWallpaper)
	authed.PATCH("/wallpapers/:id/activate", h.ActivateWallpaper)

	authed.POST("/uploads", h.Upload)

	// 附件落盘目录直接静态伺服，引用即文件名。
	r.Static("/uploads", cfg.UploadDir)

	verifier := &auth.JWTVerifier{DB: db, Secret: cfg.JWTSecret}
	r.GET("/ws", ws.Serve(reg, router, msgStore, verifier))

	return r
}
