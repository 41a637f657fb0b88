package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/pankajk/Wound-Care/config"
	"github.com/pankajk/Wound-Care/handler"
	"github.com/pankajk/Wound-Care/middleware"
	"github.com/pankajk/Wound-Care/service"
	"github.com/pankajk/Wound-Care/utils"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// 加载.env（文件不存在时忽略）
	_ = godotenv.Load()

	// 加载配置
	cfg := config.New()

	// 初始化日志
	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting wound analysis server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	// 确保审计目录存在
	if cfg.Upload.SaveDir != "" {
		if err := os.MkdirAll(cfg.Upload.SaveDir, 0755); err != nil {
			utils.Logger.Fatal("failed to create upload directory", zap.Error(err))
		}
	}

	// 初始化Redis
	redisService := service.NewRedisService(&cfg.Redis)
	ctx := context.Background()
	if err := redisService.Ping(ctx); err != nil {
		utils.Logger.Warn("redis connection failed, cache disabled", zap.Error(err))
	} else {
		utils.Logger.Info("redis connected successfully")
	}
	defer redisService.Close()

	// 初始化deepskin模型客户端和分析管线
	deepskinClient := service.NewDeepskinClient(&cfg.Deepskin)
	analysisService := service.NewAnalysisService(&cfg.Deepskin, deepskinClient, deepskinClient, deepskinClient)

	// 初始化远程叙述服务，缺少API key时只禁用叙述
	narrativeService := service.NewNarrativeService(ctx, &cfg.Gemini)
	defer narrativeService.Close()

	// 初始化Handler
	analyzeHandler := handler.NewAnalyzeHandler(cfg, redisService, analysisService, narrativeService)

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	// 创建路由
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())

	r.GET("/", analyzeHandler.Root)
	r.GET("/health", analyzeHandler.Health)
	r.GET("/version", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	r.POST("/analyze", analyzeHandler.Analyze)
	r.GET("/analysis/:md5", analyzeHandler.GetByMD5)

	// 启动服务器
	utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := r.Run(cfg.Server.Port); err != nil {
		utils.Logger.Fatal("failed to start server", zap.Error(err))
	}
}
