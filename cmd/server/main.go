// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"cookie-ai-go/internal/config"
	"cookie-ai-go/internal/handler"
	"cookie-ai-go/internal/middleware"
	"cookie-ai-go/internal/model"
	"cookie-ai-go/internal/pipeline"
	"cookie-ai-go/internal/repository"
	"cookie-ai-go/internal/service"
	"cookie-ai-go/pkg/database"
	"cookie-ai-go/pkg/kafka"
	"cookie-ai-go/pkg/llm"
	"cookie-ai-go/pkg/log"
	"cookie-ai-go/pkg/storage"
	"cookie-ai-go/pkg/tika"
	"cookie-ai-go/pkg/token"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 与可选的外部依赖
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	kafka.InitProducer(cfg.Kafka)

	if err := database.DB.AutoMigrate(&model.User{}, &model.UserSettings{}, &model.SessionRecord{}); err != nil {
		log.Fatal("数据库迁移失败", err)
	}

	// 4. 初始化 Repository
	userRepository := repository.NewUserRepository(database.DB)
	sessionRepo := repository.NewSessionRepository(database.DB)
	settingsRepo := repository.NewSettingsRepository(database.DB)
	activeSessionRepo := repository.NewActiveSessionRepository(database.RDB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	tikaClient := tika.NewClient(cfg.Tika)
	llmClient := llm.NewClient(cfg.LLM)
	ingestor := pipeline.NewIngestor(tikaClient, cfg.Upload)
	userService := service.NewUserService(userRepository, jwtManager)
	adminService := service.NewAdminService(userRepository)
	sessionService := service.NewSessionService(sessionRepo, activeSessionRepo, cfg.Chat)
	settingsService := service.NewSettingsService(settingsRepo, cfg.LLM)
	chatService := service.NewChatService(sessionService, settingsService, ingestor, llmClient, cfg.Chat, cfg.Upload)

	// 6. 初始化 Handler
	userHandler := handler.NewUserHandler(userService)
	authHandler := handler.NewAuthHandler(userService)
	sessionHandler := handler.NewSessionHandler(sessionService)
	settingsHandler := handler.NewSettingsHandler(settingsService)
	chatHandler := handler.NewChatHandler(chatService, userService, jwtManager)
	adminHandler := handler.NewAdminHandler(adminService)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", authHandler.RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		// Settings 路由组，需要认证
		settings := apiV1.Group("/settings")
		settings.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			settings.GET("", settingsHandler.GetSettings)
			settings.GET("/models", settingsHandler.ListModels)
			settings.PUT("", settingsHandler.UpdateSettings)
			settings.DELETE("", settingsHandler.ResetSettings)
		}

		// Session 路由组，需要认证
		sessions := apiV1.Group("/sessions")
		sessions.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			sessions.GET("", sessionHandler.ListSessions)
			sessions.POST("", sessionHandler.CreateSession)
			sessions.GET("/history", sessionHandler.GetHistory)
			sessions.PUT("/:key/active", sessionHandler.SetActive)
			sessions.PUT("/:key/favorite", sessionHandler.ToggleFavorite)
			sessions.DELETE("/:key", sessionHandler.DeleteSession)
		}

		// Chat 路由：SSE 方式与 WebSocket 方式并存
		chatGroup := apiV1.Group("/chat")
		{
			chatGroup.GET("/websocket-token", chatHandler.GetWebsocketStopToken)
			authed := chatGroup.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.POST("/message", chatHandler.StreamMessage)
			}
		}
		r.GET("/chat/:token", chatHandler.Handle)

		admin := apiV1.Group("/admin")
		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin.Use(middleware.AuthMiddleware(jwtManager, userService), middleware.AdminAuthMiddleware())
		{
			admin.GET("/users/list", adminHandler.ListUsers)
			admin.PUT("/users/:userId/role", adminHandler.ToggleAdminRole)
			admin.DELETE("/users/:userId", adminHandler.DeleteUser)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	kafka.Close()
	log.Info("服务已优雅关闭")
}
