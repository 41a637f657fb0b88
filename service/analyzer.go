package service

import (
	"time"

	"github.com/pankajk/Wound-Care/config"
	"github.com/pankajk/Wound-Care/model"
	"github.com/pankajk/Wound-Care/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// AnalysisService 编排一次完整的伤口分析:
// 解码 -> 分割 -> 掩码后处理 -> 特征/评分 -> 可视化 -> 指标汇总。
// 只有解码和分割失败会终止请求，其余失败均降级为占位值。
type AnalysisService struct {
	segmenter  Segmenter
	extractor  FeatureExtractor
	scorer     ScoreEvaluator
	codec      *ImageCodec
	masks      *MaskProcessor
	metrics    *MetricsCalculator
	classifier *FeatureClassifier

	tolerance  float64
	kernelSize int
	verbose    bool
}

func NewAnalysisService(cfg *config.DeepskinConfig, segmenter Segmenter, extractor FeatureExtractor, scorer ScoreEvaluator) *AnalysisService {
	codec := NewImageCodec()
	return &AnalysisService{
		segmenter:  segmenter,
		extractor:  extractor,
		scorer:     scorer,
		codec:      codec,
		masks:      NewMaskProcessor(codec),
		metrics:    NewMetricsCalculator(),
		classifier: NewFeatureClassifier(),
		tolerance:  cfg.Tolerance,
		kernelSize: cfg.KernelSize,
		verbose:    cfg.Verbose,
	}
}

// ProcessImage 分析上传的图像字节。失败不会以error形式冒泡，
// 始终返回带success标志的结果对象。
func (s *AnalysisService) ProcessImage(imageBytes []byte) *model.AnalysisResult {
	startTime := time.Now()

	img, err := s.codec.DecodeImage(imageBytes)
	if err != nil {
		utils.Logger.Error("failed to decode upload", zap.Error(err))
		return &model.AnalysisResult{Success: false, Error: "Invalid image format"}
	}
	defer img.Close()

	originalB64 := s.codec.ImageToBase64(img)

	utils.Logger.Info("image loaded",
		zap.Int("width", img.Cols()),
		zap.Int("height", img.Rows()))

	// 第一步：多类别语义分割
	seg, err := s.segmenter.Segment(img, s.tolerance, s.verbose)
	if err != nil {
		utils.Logger.Error("segmentation failed", zap.Error(err))
		return &model.AnalysisResult{Success: false, Error: "Segmentation failed: " + err.Error()}
	}
	defer seg.Close()

	// 第二步：拆分掩码并推导伤口周边，周边失败只降级为全零
	wound, body, background, peri := s.masks.ProcessSegmentation(seg, s.kernelSize)
	defer wound.Close()
	defer body.Close()
	defer background.Close()
	defer peri.Close()

	// 第三步：特征提取，失败时用错误标记代替并继续
	var features map[string]any
	features, err = s.extractor.ExtractFeatures(img, wound, "wound")
	if err != nil {
		utils.Logger.Warn("feature extraction failed", zap.Error(err))
		features = map[string]any{"error": err.Error()}
	}

	// 第四步：PWAT评分，失败时退回0.0
	// 注意：0.0会被映射为Mild，"无法评估"与"确认轻度"在此混同，维持原行为
	pwatScore, err := s.scorer.EvaluateScore(img, seg, s.kernelSize, s.verbose)
	if err != nil {
		utils.Logger.Error("pwat evaluation failed, falling back to 0.0", zap.Error(err))
		pwatScore = 0.0
	}

	// 第五步：可视化合成
	visualizations := s.masks.CreateVisualizations(img, wound, peri, body)

	// 第六步：几何指标
	woundMetrics := s.metrics.Calculate(wound, peri)

	result := &model.AnalysisResult{
		Success:       true,
		PwatScore:     pwatScore,
		PwatSeverity:  SeverityForScore(pwatScore),
		WoundDetected: gocv.CountNonZero(wound) > 0,

		OriginalImage:  originalB64,
		Visualizations: visualizations,
		Masks: map[string]string{
			"wound_mask":      s.codec.MaskToBase64(wound),
			"peri_wound_mask": s.codec.MaskToBase64(peri),
			"body_mask":       s.codec.MaskToBase64(body),
			"segmentation":    s.codec.SegmentationToBase64(seg),
		},
		Features:     s.classifier.Classify(features),
		WoundMetrics: woundMetrics,
		Raw: &model.RawCounts{
			WoundAreaPixels: woundMetrics.WoundAreaPixels,
			PeriAreaPixels:  woundMetrics.PeriAreaPixels,
			BodyAreaPixels:  gocv.CountNonZero(body),
			ImageDimensions: model.Dimensions{
				Height: img.Rows(),
				Width:  img.Cols(),
			},
		},
	}

	utils.Logger.Info("analysis complete",
		zap.Float64("pwat_score", pwatScore),
		zap.String("severity", result.PwatSeverity.Level),
		zap.Bool("wound_detected", result.WoundDetected),
		zap.Duration("duration", time.Since(startTime)))

	return result
}
