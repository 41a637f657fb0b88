package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// NarrativeBackend 视觉语言模型的传输层，策略层只关心
// 模型名、提示词和可选的图像负载
type NarrativeBackend interface {
	// Generate 发起一次生成调用。image为nil时仅提交文本。
	Generate(ctx context.Context, model string, prompt string, image []byte, format string) (string, error)
	Close() error
}

// GeminiBackend 基于google generative-ai SDK的NarrativeBackend实现
type GeminiBackend struct {
	client *genai.Client
}

func NewGeminiBackend(ctx context.Context, apiKey string) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiBackend{client: client}, nil
}

func (b *GeminiBackend) Generate(ctx context.Context, model string, prompt string, image []byte, format string) (string, error) {
	m := b.client.GenerativeModel(model)

	parts := []genai.Part{genai.Text(prompt)}
	if len(image) > 0 {
		parts = append(parts, genai.ImageData(format, image))
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", err
	}
	return extractText(resp)
}

func (b *GeminiBackend) Close() error {
	return b.client.Close()
}

// extractText 归一化候选响应的异构形状，拼接全部文本片段
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty model response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("model response contains no text")
	}
	return sb.String(), nil
}
