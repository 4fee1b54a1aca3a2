package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hummify/hummify-backend/api"
	"github.com/hummify/hummify-backend/internal/feed"
	"github.com/hummify/hummify-backend/internal/hum"
	"github.com/hummify/hummify-backend/internal/matcher"
	"github.com/hummify/hummify-backend/internal/platform/config"
	"github.com/hummify/hummify-backend/internal/platform/database"
	"github.com/hummify/hummify-backend/internal/platform/health"
	"github.com/hummify/hummify-backend/internal/platform/shutdown"
	"github.com/hummify/hummify-backend/internal/platform/startup"
	"github.com/hummify/hummify-backend/internal/storage"
	"github.com/hummify/hummify-backend/pkg/lifecycle"
	"github.com/hummify/hummify-backend/pkg/token"
	"github.com/joho/godotenv"
)

func main() {
	// .env 仅本地开发使用，不存在不是错误
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("无法加载配置: %v", err))
	}

	token.GenerateSecretKey()
	database.InitDB(cfg.Database)
	database.InitRedis(cfg.Database.Redis)

	// 1. 阻塞式获取初始Run ID
	health.InitializeRunID()

	// 2. 装配Blob存储和识别服务客户端
	store, err := storage.NewBlobStore(cfg.Storage.Root)
	if err != nil {
		panic(fmt.Sprintf("无法初始化Blob存储: %v", err))
	}
	hum.UseBlobStore(store)

	matcherClient := matcher.NewClient(cfg.Matcher)
	feed.UseMatcherClient(matcherClient)
	health.UseMatcherClient(matcherClient)

	// 3. 执行应用首次启动初始化流程
	if err := startup.InitializeApplication(); err != nil {
		panic(fmt.Sprintf("应用初始化失败，无法启动: %v", err))
	}

	// 4. 阻塞式执行一次启动后健康检查
	fmt.Println("正在执行启动后健康检查...")
	health.PerformRedisCheck()
	health.PerformMatcherCheck(context.Background())

	// 5. 创建生命周期管理器并启动后台服务
	gracefulMgr := lifecycle.NewManager()
	forcefulMgr := lifecycle.NewManager()

	healthHandle, err := gracefulMgr.NewServiceHandle("health-checker")
	if err != nil {
		panic(err)
	}
	go health.StartHealthCheck(healthHandle)

	reconcileHandle, err := gracefulMgr.NewServiceHandle("counter-reconciler")
	if err != nil {
		panic(err)
	}
	go hum.StartReconcileScheduler(reconcileHandle)

	// 6. 创建Gin引擎
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.Cors.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 哼唱音频由静态路由提供，URL与文档中的audioUrl对应
	r.Static("/static", store.Root())

	api.SetupRoutes(r)

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
	}

	go func() {
		fmt.Printf("服务器已准备就绪，开始监听 %s\n", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic("Failed to start server: " + err.Error())
		}
	}()

	// 7. 阻塞等待停机信号，执行两阶段优雅停机
	coordinator := shutdown.NewCoordinator(gracefulMgr, forcefulMgr)
	coordinator.ListenForSignalsAndShutdown(server)
}
