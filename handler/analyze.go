package handler

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pankajk/Wound-Care/config"
	"github.com/pankajk/Wound-Care/model"
	"github.com/pankajk/Wound-Care/service"
	"github.com/pankajk/Wound-Care/utils"
	"go.uber.org/zap"
)

type AnalyzeHandler struct {
	cfg       *config.Config
	redis     *service.RedisService
	analysis  *service.AnalysisService
	narrative *service.NarrativeService
}

func NewAnalyzeHandler(cfg *config.Config, redis *service.RedisService, analysis *service.AnalysisService, narrative *service.NarrativeService) *AnalyzeHandler {
	return &AnalyzeHandler{
		cfg:       cfg,
		redis:     redis,
		analysis:  analysis,
		narrative: narrative,
	}
}

// Root 存活标记
func (h *AnalyzeHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Wound Analysis API",
		"status":  "running",
	})
}

// Health 健康检查，报告分割管线和远程模型的配置状态
func (h *AnalyzeHandler) Health(c *gin.Context) {
	gemini := "missing API key"
	if h.narrative != nil && h.narrative.Available() {
		gemini = "configured"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"deepskin":  "loaded",
		"gemini":    gemini,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Analyze 处理伤口图片上传并返回组合分析结果。
// 分析级别的失败以success:false的结果对象返回，HTTP层始终200。
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		utils.Logger.Error("failed to get uploaded file", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "请上传图片文件",
			Error:   err.Error(),
		})
		return
	}

	// 验证文件大小
	if file.Size > h.cfg.Upload.MaxSize {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("文件大小超过限制 (%d MB)", h.cfg.Upload.MaxSize/(1024*1024)),
		})
		return
	}

	// 验证文件类型
	contentType := file.Header.Get("Content-Type")
	if !h.isAllowedType(contentType) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "不支持的文件类型，仅支持 JPEG/PNG",
		})
		return
	}

	src, err := file.Open()
	if err != nil {
		utils.Logger.Error("failed to open upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "读取上传文件失败",
			Error:   err.Error(),
		})
		return
	}
	defer src.Close()

	imageBytes, err := io.ReadAll(src)
	if err != nil {
		utils.Logger.Error("failed to read upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "读取上传文件失败",
			Error:   err.Error(),
		})
		return
	}

	md5 := utils.BytesMD5(imageBytes)

	utils.Logger.Info("file uploaded",
		zap.String("filename", file.Filename),
		zap.String("md5", md5),
		zap.Int64("size", file.Size))

	// 审计副本（如果配置启用）
	h.saveAuditCopy(imageBytes, md5, file.Filename)

	ctx := c.Request.Context()

	// 分割结果按MD5缓存，叙述分析每次重新生成
	deepskinResult, err := h.redis.GetAnalysis(ctx, md5)
	if err != nil {
		utils.Logger.Warn("failed to get cache", zap.Error(err))
	}
	if deepskinResult != nil {
		utils.Logger.Info("cache hit", zap.String("md5", md5))
	} else {
		deepskinResult = h.analysis.ProcessImage(imageBytes)
		if deepskinResult.Success {
			if err := h.redis.SetAnalysis(ctx, md5, deepskinResult); err != nil {
				utils.Logger.Warn("failed to set cache", zap.Error(err))
			}
		}
	}

	// 远程叙述仅在模型可用且分割成功时尝试
	var narrativeResult *model.NarrativeResult
	if h.narrative != nil && h.narrative.Available() && deepskinResult.Success {
		narrativeResult = h.narrative.AnalyzeWound(ctx, imageBytes, deepskinResult)
	}

	c.JSON(http.StatusOK, model.AnalyzeResponse{
		Filename: file.Filename,
		Deepskin: deepskinResult,
		Gemini:   narrativeResult,
	})
}

// GetByMD5 按MD5查询缓存的分析结果
func (h *AnalyzeHandler) GetByMD5(c *gin.Context) {
	md5 := c.Param("md5")
	if md5 == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "MD5参数缺失",
		})
		return
	}

	result, err := h.redis.GetAnalysis(c.Request.Context(), md5)
	if err != nil {
		utils.Logger.Error("failed to get analysis", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "查询失败",
			Error:   err.Error(),
		})
		return
	}

	if result == nil {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Success: false,
			Message: "未找到该图片的分析结果",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"md5":      md5,
		"deepskin": result,
	})
}

// saveAuditCopy 保留上传原图副本，失败只记录不影响请求
func (h *AnalyzeHandler) saveAuditCopy(data []byte, md5, filename string) {
	if h.cfg.Upload.SaveDir == "" {
		return
	}

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".jpg"
	}
	path := filepath.Join(h.cfg.Upload.SaveDir, md5+ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		utils.Logger.Warn("failed to save audit copy",
			zap.String("path", path), zap.Error(err))
	}
}

func (h *AnalyzeHandler) isAllowedType(contentType string) bool {
	for _, allowed := range h.cfg.Upload.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}
