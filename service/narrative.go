package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pankajk/Wound-Care/config"
	"github.com/pankajk/Wound-Care/model"
	"github.com/pankajk/Wound-Care/utils"
	"go.uber.org/zap"
)

// narrativeMaxSide 提交远程模型前图像最长边的上限
const narrativeMaxSide = 1024

// PreviousAnalysis 历史分析摘要，用于趋势对比提示词
type PreviousAnalysis struct {
	PwatScore float64 `json:"pwat_score"`
	Timestamp string  `json:"timestamp"`
}

// NarrativeService 调用远程视觉语言模型生成临床叙述。
// 三个策略按固定顺序逐个尝试，第一个成功者胜出；
// 模型标识在构造时探测一次并固定，之后只读。
type NarrativeService struct {
	backend        NarrativeBackend
	codec          *ImageCodec
	modelName      string
	available      bool
	fallbackModels []string
}

// NewNarrativeService 创建叙述服务。没有API key或探测失败时服务不可用，
// 但不阻止分割分析。
func NewNarrativeService(ctx context.Context, cfg *config.GeminiConfig) *NarrativeService {
	s := &NarrativeService{
		codec:          NewImageCodec(),
		fallbackModels: cfg.FallbackModels,
	}

	if cfg.APIKey == "" {
		utils.Logger.Warn("no Google API key found, narrative analysis disabled")
		return s
	}

	backend, err := NewGeminiBackend(ctx, cfg.APIKey)
	if err != nil {
		utils.Logger.Error("gemini initialization failed", zap.Error(err))
		return s
	}
	s.backend = backend
	s.probeModels(ctx)
	return s
}

// newNarrativeServiceWithBackend 测试用构造器，跳过真实客户端
func newNarrativeServiceWithBackend(ctx context.Context, backend NarrativeBackend, models []string) *NarrativeService {
	s := &NarrativeService{
		backend:        backend,
		codec:          NewImageCodec(),
		fallbackModels: models,
	}
	s.probeModels(ctx)
	return s
}

// probeModels 按优先级对候选模型各发一次廉价请求，固定第一个可用的
func (s *NarrativeService) probeModels(ctx context.Context) {
	for _, name := range s.fallbackModels {
		if _, err := s.backend.Generate(ctx, name, "test", nil, ""); err != nil {
			utils.Logger.Debug("model probe failed",
				zap.String("model", name), zap.Error(err))
			continue
		}
		s.modelName = name
		s.available = true
		utils.Logger.Info("narrative model pinned", zap.String("model", name))
		return
	}
	utils.Logger.Warn("no working narrative model found")
}

// Available 启动探测是否成功固定了可用模型
func (s *NarrativeService) Available() bool {
	return s.available
}

// ModelName 当前固定的模型标识，不可用时为空
func (s *NarrativeService) ModelName() string {
	return s.modelName
}

// Close 释放底层客户端连接
func (s *NarrativeService) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// AnalyzeWound 依次尝试三个策略生成临床叙述，全部失败时
// 返回携带最后一个错误详情的结构化失败
func (s *NarrativeService) AnalyzeWound(ctx context.Context, imageBytes []byte, analysis *model.AnalysisResult) *model.NarrativeResult {
	if !s.available {
		return &model.NarrativeResult{
			Success:         false,
			Error:           "Gemini not available",
			Note:            "Check API key and model access",
			AvailableModels: s.fallbackModels,
		}
	}

	// 策略1：规范化后的JPEG字节 + 完整临床上下文
	result := s.analyzeWithBytes(ctx, imageBytes, analysis)
	if result.Success {
		return result
	}

	// 策略2：无损图像负载 + 简化上下文
	result = s.analyzeWithImage(ctx, imageBytes, analysis)
	if result.Success {
		return result
	}

	// 策略3：最小提示词，不带临床数据
	result = s.analyzeSimple(ctx, imageBytes)
	if result.Success {
		return result
	}

	return &model.NarrativeResult{
		Success: false,
		Error:   "All analysis strategies failed",
		Details: result.Error,
	}
}

// AnalyzeWithHistory 携带既往评分趋势的增强分析，
// 失败时退回普通分析
func (s *NarrativeService) AnalyzeWithHistory(ctx context.Context, imageBytes []byte, analysis *model.AnalysisResult, previous []PreviousAnalysis) *model.NarrativeResult {
	if !s.available {
		return s.AnalyzeWound(ctx, imageBytes, analysis)
	}

	prompt := fmt.Sprintf("You are a wound care specialist reviewing healing progress.\n\nCURRENT MEASUREMENTS:\n- PWAT Score: %.2f\n", analysis.PwatScore)
	if len(previous) > 0 {
		prompt += "\nPREVIOUS MEASUREMENTS:\n"
		start := 0
		if len(previous) > 3 {
			start = len(previous) - 3
		}
		for i, prev := range previous[start:] {
			date := prev.Timestamp
			if len(date) > 10 {
				date = date[:10]
			}
			prompt += fmt.Sprintf("- Analysis %d (%s): PWAT %.2f\n", i+1, date, prev.PwatScore)
		}
		prompt += "\nBased on this trend, is the wound healing, stable, or worsening?"
	} else {
		prompt += "\nThis is the first analysis - provide baseline assessment."
	}

	payload, err := s.prepareImage(imageBytes, false)
	if err != nil {
		utils.Logger.Warn("history analysis image preparation failed", zap.Error(err))
		return s.AnalyzeWound(ctx, imageBytes, analysis)
	}

	text, err := s.backend.Generate(ctx, s.modelName, prompt, payload, "png")
	if err != nil {
		utils.Logger.Warn("history analysis failed", zap.Error(err))
		return s.AnalyzeWound(ctx, imageBytes, analysis)
	}

	return &model.NarrativeResult{
		Success:     true,
		Analysis:    text,
		ModelUsed:   s.modelName,
		WithHistory: len(previous) > 0,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

// analyzeWithBytes 策略1：标准化JPEG字节加完整上下文
func (s *NarrativeService) analyzeWithBytes(ctx context.Context, imageBytes []byte, analysis *model.AnalysisResult) *model.NarrativeResult {
	payload, err := s.prepareImage(imageBytes, true)
	if err != nil {
		return s.strategyFailure("bytes", err)
	}

	utils.Logger.Info("image prepared for narrative",
		zap.Int("payload_bytes", len(payload)),
		zap.String("model", s.modelName))

	woundArea := 0
	if analysis.WoundMetrics != nil {
		woundArea = analysis.WoundMetrics.WoundAreaPixels
	}
	prompt := analysisPrompt(analysis.PwatScore, woundArea, analysis.WoundDetected, severityLabel(analysis))

	text, err := s.backend.Generate(ctx, s.modelName, prompt, payload, "jpeg")
	if err != nil {
		utils.Logger.Warn("narrative strategy failed",
			zap.String("strategy", "bytes"), zap.Error(err))
		return s.strategyFailure("bytes", err)
	}

	return s.strategySuccess("bytes", text, "")
}

// analyzeWithImage 策略2：无损负载加简化提示词
func (s *NarrativeService) analyzeWithImage(ctx context.Context, imageBytes []byte, analysis *model.AnalysisResult) *model.NarrativeResult {
	payload, err := s.prepareImage(imageBytes, false)
	if err != nil {
		return s.strategyFailure("pil", err)
	}

	prompt := fmt.Sprintf(`Analyze this wound image.
PWAT Score: %.2f (0-32, higher = more severe)
Severity: %s

Describe the tissue composition and wound characteristics briefly.`,
		analysis.PwatScore, severityLabel(analysis))

	text, err := s.backend.Generate(ctx, s.modelName, prompt, payload, "png")
	if err != nil {
		utils.Logger.Warn("narrative strategy failed",
			zap.String("strategy", "pil"), zap.Error(err))
		return s.strategyFailure("pil", err)
	}

	return s.strategySuccess("pil", text, "")
}

// analyzeSimple 策略3：固定提示词，不带任何临床数字
func (s *NarrativeService) analyzeSimple(ctx context.Context, imageBytes []byte) *model.NarrativeResult {
	payload, err := s.prepareImage(imageBytes, false)
	if err != nil {
		return s.strategyFailure("simple", err)
	}

	prompt := "Describe this wound image. What do you see?"

	text, err := s.backend.Generate(ctx, s.modelName, prompt, payload, "png")
	if err != nil {
		utils.Logger.Warn("narrative strategy failed",
			zap.String("strategy", "simple"), zap.Error(err))
		return s.strategyFailure("simple", err)
	}

	return s.strategySuccess("simple", text, "Analysis without Deepskin context")
}

func (s *NarrativeService) strategySuccess(strategy, text, note string) *model.NarrativeResult {
	return &model.NarrativeResult{
		Success:   true,
		Analysis:  text,
		ModelUsed: s.modelName,
		Strategy:  strategy,
		Note:      note,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func (s *NarrativeService) strategyFailure(strategy string, err error) *model.NarrativeResult {
	return &model.NarrativeResult{
		Success:  false,
		Strategy: strategy,
		Error:    err.Error(),
	}
}

// prepareImage 解码并等比缩放到1024以内，按策略重编码为
// 有损JPEG或无损PNG
func (s *NarrativeService) prepareImage(imageBytes []byte, lossy bool) ([]byte, error) {
	img, err := s.codec.DecodeImage(imageBytes)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	resized := s.codec.ResizeToFit(img, narrativeMaxSide)
	defer resized.Close()

	if lossy {
		return s.codec.EncodeJPEG(resized)
	}
	return s.codec.EncodePNG(resized)
}

func severityLabel(analysis *model.AnalysisResult) string {
	if analysis == nil || analysis.PwatSeverity.Level == "" {
		return "Unknown"
	}
	return analysis.PwatSeverity.Level
}

// analysisPrompt 构造策略1使用的完整临床提示词
func analysisPrompt(pwat float64, woundArea int, woundDetected bool, severity string) string {
	return fmt.Sprintf(`You are a wound care specialist. Analyze this wound image and provide a detailed clinical assessment.

AUTOMATED MEASUREMENTS:
- PWAT Score: %.2f (Pressure Ulcer Scale for Healing, 0-32, higher = more severe)
- Wound Area: %d pixels
- Wound Detected: %t
- Severity Level: %s

Please provide a structured analysis with these sections:

1. **TISSUE COMPOSITION** (estimate percentages):
   - Granulation tissue (red, healthy tissue)
   - Slough (yellow/white, stringy tissue)
   - Necrotic/Eschar (black/brown, dead tissue)
   - Epithelialization (pink, new skin growth)

2. **WOUND BED CHARACTERISTICS**:
   - Color description
   - Moisture/exudate level (dry, moist, wet)
   - Any visible signs of infection (erythema, purulence, odor)
   - Peri-wound skin condition

3. **HEALING ASSESSMENT**:
   - What phase of healing? (inflammatory, proliferative, remodeling)
   - Is the wound improving, stable, or deteriorating based on appearance?
   - Does the automated severity (%s) match your visual assessment?

4. **CLINICAL RECOMMENDATIONS**:
   - Suggested dressing types based on tissue composition
   - Care instructions for patient
   - When to seek medical attention (red flags)

5. **PATIENT-FRIENDLY SUMMARY**:
   - Simple explanation in plain language
   - Easy-to-follow care steps

Keep the analysis concise but clinically relevant. Use bullet points for readability.`,
		pwat, woundArea, woundDetected, severity, severity)
}
