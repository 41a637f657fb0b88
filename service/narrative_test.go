package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pankajk/Wound-Care/model"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// stubBackend 按脚本应答的NarrativeBackend。image为nil的调用视为探测。
type stubBackend struct {
	probeErrs map[string]error // 模型名 -> 探测结果，缺省为成功
	replies   []stubReply      // 带图调用按顺序消费
	calls     []stubCall
}

type stubReply struct {
	text string
	err  error
}

type stubCall struct {
	model  string
	prompt string
	probe  bool
}

func (b *stubBackend) Generate(_ context.Context, modelName, prompt string, image []byte, _ string) (string, error) {
	probe := len(image) == 0
	b.calls = append(b.calls, stubCall{model: modelName, prompt: prompt, probe: probe})

	if probe {
		return "ok", b.probeErrs[modelName]
	}

	if len(b.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	reply := b.replies[0]
	b.replies = b.replies[1:]
	return reply.text, reply.err
}

func (b *stubBackend) Close() error { return nil }

func (b *stubBackend) imageCalls() int {
	n := 0
	for _, c := range b.calls {
		if !c.probe {
			n++
		}
	}
	return n
}

func testImageBytes(t *testing.T) []byte {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(60, 80, 100, 0), 16, 16, gocv.MatTypeCV8UC3)
	defer img.Close()
	data, err := NewImageCodec().EncodePNG(img)
	require.NoError(t, err)
	return data
}

func testAnalysisResult() *model.AnalysisResult {
	return &model.AnalysisResult{
		Success:       true,
		PwatScore:     12.5,
		PwatSeverity:  SeverityForScore(12.5),
		WoundDetected: true,
		WoundMetrics:  &model.WoundMetrics{WoundAreaPixels: 420},
	}
}

func TestNarrativeService_ProbePinsFirstWorkingModel(t *testing.T) {
	backend := &stubBackend{probeErrs: map[string]error{
		"model-a": errors.New("not found"),
	}}
	svc := newNarrativeServiceWithBackend(context.Background(), backend, []string{"model-a", "model-b", "model-c"})

	require.True(t, svc.Available())
	require.Equal(t, "model-b", svc.ModelName())
}

func TestNarrativeService_AllProbesFail(t *testing.T) {
	backend := &stubBackend{probeErrs: map[string]error{
		"model-a": errors.New("nope"),
		"model-b": errors.New("nope"),
	}}
	svc := newNarrativeServiceWithBackend(context.Background(), backend, []string{"model-a", "model-b"})

	require.False(t, svc.Available())

	result := svc.AnalyzeWound(context.Background(), testImageBytes(t), testAnalysisResult())
	require.False(t, result.Success)
	require.Equal(t, "Gemini not available", result.Error)
	require.Equal(t, []string{"model-a", "model-b"}, result.AvailableModels)
}

func TestNarrativeService_FirstStrategySucceeds(t *testing.T) {
	backend := &stubBackend{replies: []stubReply{
		{text: "clinical narrative"},
	}}
	svc := newNarrativeServiceWithBackend(context.Background(), backend, []string{"model-a"})

	result := svc.AnalyzeWound(context.Background(), testImageBytes(t), testAnalysisResult())

	require.True(t, result.Success)
	require.Equal(t, "bytes", result.Strategy)
	require.Equal(t, "model-a", result.ModelUsed)
	require.Equal(t, "clinical narrative", result.Analysis)
	require.NotEmpty(t, result.Timestamp)
	require.Equal(t, 1, backend.imageCalls())

	// 完整上下文提示词包含自动测量值
	prompt := backend.calls[len(backend.calls)-1].prompt
	require.Contains(t, prompt, "PWAT Score: 12.50")
	require.Contains(t, prompt, "Wound Area: 420 pixels")
	require.Contains(t, prompt, "Severity Level: Moderate")
}

// 策略1失败、策略2成功: 结果标记为pil，绝不尝试策略3
func TestNarrativeService_FallsBackToSecondStrategy(t *testing.T) {
	backend := &stubBackend{replies: []stubReply{
		{err: errors.New("payload rejected")},
		{text: "shorter narrative"},
	}}
	svc := newNarrativeServiceWithBackend(context.Background(), backend, []string{"model-a"})

	result := svc.AnalyzeWound(context.Background(), testImageBytes(t), testAnalysisResult())

	require.True(t, result.Success)
	require.Equal(t, "pil", result.Strategy)
	require.Equal(t, 2, backend.imageCalls())
}

func TestNarrativeService_ThirdStrategyHasNoClinicalContext(t *testing.T) {
	backend := &stubBackend{replies: []stubReply{
		{err: errors.New("fail 1")},
		{err: errors.New("fail 2")},
		{text: "plain description"},
	}}
	svc := newNarrativeServiceWithBackend(context.Background(), backend, []string{"model-a"})

	result := svc.AnalyzeWound(context.Background(), testImageBytes(t), testAnalysisResult())

	require.True(t, result.Success)
	require.Equal(t, "simple", result.Strategy)
	require.Equal(t, "Analysis without Deepskin context", result.Note)

	prompt := backend.calls[len(backend.calls)-1].prompt
	require.NotContains(t, prompt, "PWAT")
	require.NotContains(t, prompt, "12.5")
}

func TestNarrativeService_AllStrategiesFail(t *testing.T) {
	backend := &stubBackend{replies: []stubReply{
		{err: errors.New("fail 1")},
		{err: errors.New("fail 2")},
		{err: errors.New("fail 3")},
	}}
	svc := newNarrativeServiceWithBackend(context.Background(), backend, []string{"model-a"})

	result := svc.AnalyzeWound(context.Background(), testImageBytes(t), testAnalysisResult())

	require.False(t, result.Success)
	require.Equal(t, "All analysis strategies failed", result.Error)
	require.Equal(t, "fail 3", result.Details)
	require.Equal(t, 3, backend.imageCalls())
}

func TestNarrativeService_AnalyzeWithHistory(t *testing.T) {
	backend := &stubBackend{replies: []stubReply{
		{text: "trend assessment"},
	}}
	svc := newNarrativeServiceWithBackend(context.Background(), backend, []string{"model-a"})

	previous := []PreviousAnalysis{
		{PwatScore: 20, Timestamp: "2026-08-01T10:00:00Z"},
		{PwatScore: 18, Timestamp: "2026-08-10T10:00:00Z"},
		{PwatScore: 15, Timestamp: "2026-08-20T10:00:00Z"},
		{PwatScore: 13, Timestamp: "2026-08-28T10:00:00Z"},
	}

	result := svc.AnalyzeWithHistory(context.Background(), testImageBytes(t), testAnalysisResult(), previous)

	require.True(t, result.Success)
	require.True(t, result.WithHistory)
	require.Equal(t, "trend assessment", result.Analysis)

	// 提示词只携带最近3条历史记录
	prompt := backend.calls[len(backend.calls)-1].prompt
	require.Contains(t, prompt, "PREVIOUS MEASUREMENTS")
	require.NotContains(t, prompt, "PWAT 20.00")
	require.Contains(t, prompt, "PWAT 18.00")
	require.Contains(t, prompt, "2026-08-28")
	require.Contains(t, prompt, "healing, stable, or worsening")
}

// 历史分析失败时退回普通分析
func TestNarrativeService_HistoryFallsBackToPlainAnalysis(t *testing.T) {
	backend := &stubBackend{replies: []stubReply{
		{err: fmt.Errorf("history call failed")},
		{text: "plain narrative"},
	}}
	svc := newNarrativeServiceWithBackend(context.Background(), backend, []string{"model-a"})

	result := svc.AnalyzeWithHistory(context.Background(), testImageBytes(t), testAnalysisResult(), nil)

	require.True(t, result.Success)
	require.Equal(t, "bytes", result.Strategy)
	require.Equal(t, "plain narrative", result.Analysis)
}
