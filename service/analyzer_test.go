package service

import (
	"errors"
	"image"
	"testing"

	"github.com/pankajk/Wound-Care/config"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type stubSegmenter struct {
	seg gocv.Mat
	err error
}

func (s *stubSegmenter) Segment(_ gocv.Mat, _ float64, _ bool) (gocv.Mat, error) {
	if s.err != nil {
		return gocv.NewMat(), s.err
	}
	return s.seg.Clone(), nil
}

type stubExtractor struct {
	features map[string]any
	err      error
}

func (s *stubExtractor) ExtractFeatures(_ gocv.Mat, _ gocv.Mat, _ string) (map[string]any, error) {
	return s.features, s.err
}

type stubScorer struct {
	score float64
	err   error
}

func (s *stubScorer) EvaluateScore(_ gocv.Mat, _ gocv.Mat, _ int, _ bool) (float64, error) {
	return s.score, s.err
}

func testDeepskinConfig() *config.DeepskinConfig {
	return &config.DeepskinConfig{
		Tolerance:  0.95,
		KernelSize: 15,
	}
}

// 64x64测试图及同尺寸三通道分割结果
func analyzerFixtures(t *testing.T, wound, body image.Rectangle) ([]byte, gocv.Mat) {
	t.Helper()

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(70, 90, 110, 0), 64, 64, gocv.MatTypeCV8UC3)
	defer img.Close()
	imageBytes, err := NewImageCodec().EncodePNG(img)
	require.NoError(t, err)

	seg := makeSegmentation(t, 64, 64, wound, body)
	return imageBytes, seg
}

func TestAnalysisService_FullPipeline(t *testing.T) {
	imageBytes, seg := analyzerFixtures(t, image.Rect(20, 20, 40, 40), image.Rect(5, 5, 60, 60))
	defer seg.Close()

	svc := NewAnalysisService(testDeepskinConfig(),
		&stubSegmenter{seg: seg},
		&stubExtractor{features: map[string]any{"wound_contrast": 1.23456789, "wound_red_mean": 100.5}},
		&stubScorer{score: 17.2})

	result := svc.ProcessImage(imageBytes)

	require.True(t, result.Success)
	require.Empty(t, result.Error)
	require.True(t, result.WoundDetected)
	require.Equal(t, 17.2, result.PwatScore)
	require.Equal(t, "Severe", result.PwatSeverity.Level)
	require.NotEmpty(t, result.OriginalImage)

	for _, name := range []string{"wound_outline", "combined_outline", "wound_only", "heatmap", "overlay"} {
		require.Contains(t, result.Visualizations, name)
	}
	for _, name := range []string{"wound_mask", "peri_wound_mask", "body_mask", "segmentation"} {
		require.Contains(t, result.Masks, name)
		require.NotEmpty(t, result.Masks[name])
	}

	require.Contains(t, result.Features["Texture"], "wound_contrast")
	require.Contains(t, result.Features["Color"], "wound_red_mean")

	require.NotNil(t, result.WoundMetrics)
	require.Greater(t, result.WoundMetrics.WoundAreaPixels, 0)

	require.NotNil(t, result.Raw)
	require.Equal(t, result.WoundMetrics.WoundAreaPixels, result.Raw.WoundAreaPixels)
	require.Greater(t, result.Raw.BodyAreaPixels, 0)
	require.Equal(t, 64, result.Raw.ImageDimensions.Height)
	require.Equal(t, 64, result.Raw.ImageDimensions.Width)
}

func TestAnalysisService_InvalidUpload(t *testing.T) {
	svc := NewAnalysisService(testDeepskinConfig(), &stubSegmenter{}, &stubExtractor{}, &stubScorer{})

	for _, payload := range [][]byte{nil, {}, []byte("garbage")} {
		result := svc.ProcessImage(payload)
		require.False(t, result.Success)
		require.Equal(t, "Invalid image format", result.Error)
	}
}

func TestAnalysisService_SegmentationFailureIsTerminal(t *testing.T) {
	imageBytes, seg := analyzerFixtures(t, image.Rectangle{}, image.Rectangle{})
	defer seg.Close()

	svc := NewAnalysisService(testDeepskinConfig(),
		&stubSegmenter{err: errors.New("model unavailable")},
		&stubExtractor{}, &stubScorer{})

	result := svc.ProcessImage(imageBytes)

	require.False(t, result.Success)
	require.Equal(t, "Segmentation failed: model unavailable", result.Error)
	require.Nil(t, result.WoundMetrics)
}

// 特征提取失败只替换为错误标记，分析继续
func TestAnalysisService_FeatureFailureRecovered(t *testing.T) {
	imageBytes, seg := analyzerFixtures(t, image.Rect(20, 20, 40, 40), image.Rect(5, 5, 60, 60))
	defer seg.Close()

	svc := NewAnalysisService(testDeepskinConfig(),
		&stubSegmenter{seg: seg},
		&stubExtractor{err: errors.New("extraction blew up")},
		&stubScorer{score: 5})

	result := svc.ProcessImage(imageBytes)

	require.True(t, result.Success)
	require.Equal(t, "extraction blew up", result.Features["Other"]["error"])
}

// 评分失败退回0.0，严重程度显示Mild（维持原有行为）
func TestAnalysisService_ScoreFailureFallsBackToZero(t *testing.T) {
	imageBytes, seg := analyzerFixtures(t, image.Rect(20, 20, 40, 40), image.Rect(5, 5, 60, 60))
	defer seg.Close()

	svc := NewAnalysisService(testDeepskinConfig(),
		&stubSegmenter{seg: seg},
		&stubExtractor{features: map[string]any{}},
		&stubScorer{err: errors.New("scorer down")})

	result := svc.ProcessImage(imageBytes)

	require.True(t, result.Success)
	require.Equal(t, 0.0, result.PwatScore)
	require.Equal(t, "Mild", result.PwatSeverity.Level)
}

// 空伤口掩码: wound_detected为false，可视化条目仍齐全
func TestAnalysisService_EmptyWoundMask(t *testing.T) {
	imageBytes, seg := analyzerFixtures(t, image.Rectangle{}, image.Rect(5, 5, 60, 60))
	defer seg.Close()

	svc := NewAnalysisService(testDeepskinConfig(),
		&stubSegmenter{seg: seg},
		&stubExtractor{features: map[string]any{}},
		&stubScorer{score: 2})

	result := svc.ProcessImage(imageBytes)

	require.True(t, result.Success)
	require.False(t, result.WoundDetected)
	require.Len(t, result.Visualizations, 5)
	require.Equal(t, 0, result.WoundMetrics.WoundAreaPixels)
	require.Equal(t, 0.0, result.WoundMetrics.WoundAreaPercentage)
}
