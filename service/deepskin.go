package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/pankajk/Wound-Care/config"
	"gocv.io/x/gocv"
)

// Segmenter 伤口语义分割协作方，输出多通道分割结果
// (通道0=伤口, 通道1=躯体, 通道2=背景)
type Segmenter interface {
	Segment(img gocv.Mat, tol float64, verbose bool) (gocv.Mat, error)
}

// FeatureExtractor 临床特征提取协作方
type FeatureExtractor interface {
	ExtractFeatures(img gocv.Mat, mask gocv.Mat, prefix string) (map[string]any, error)
}

// ScoreEvaluator PWAT评分协作方
type ScoreEvaluator interface {
	EvaluateScore(img gocv.Mat, segmentation gocv.Mat, ksize int, verbose bool) (float64, error)
}

// DeepskinClient 通过HTTP调用deepskin模型服务，实现上面三个协作方接口
type DeepskinClient struct {
	baseURL string
	client  *http.Client
	codec   *ImageCodec
}

func NewDeepskinClient(cfg *config.DeepskinConfig) *DeepskinClient {
	return &DeepskinClient{
		baseURL: cfg.URL,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		codec: NewImageCodec(),
	}
}

// Segment 提交原图，返回PNG编码的多通道分割结果
func (c *DeepskinClient) Segment(img gocv.Mat, tol float64, verbose bool) (gocv.Mat, error) {
	fields := map[string]string{
		"tol":     fmt.Sprintf("%g", tol),
		"verbose": fmt.Sprintf("%t", verbose),
	}
	data, err := c.postImage("/segment", fields, map[string]gocv.Mat{"image": img})
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("segmentation request failed: %w", err)
	}

	seg, err := gocv.IMDecode(data, gocv.IMReadUnchanged)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to decode segmentation: %w", err)
	}
	if seg.Empty() {
		seg.Close()
		return gocv.NewMat(), fmt.Errorf("empty segmentation response")
	}
	return seg, nil
}

// ExtractFeatures 提交原图和伤口掩码，返回特征名到数值的扁平表
func (c *DeepskinClient) ExtractFeatures(img gocv.Mat, mask gocv.Mat, prefix string) (map[string]any, error) {
	data, err := c.postImage("/features", map[string]string{"prefix": prefix},
		map[string]gocv.Mat{"image": img, "mask": mask})
	if err != nil {
		return nil, fmt.Errorf("feature extraction request failed: %w", err)
	}

	var features map[string]any
	if err := json.Unmarshal(data, &features); err != nil {
		return nil, fmt.Errorf("failed to parse features: %w", err)
	}
	return features, nil
}

// EvaluateScore 提交原图和分割结果，返回PWAT评分
func (c *DeepskinClient) EvaluateScore(img gocv.Mat, segmentation gocv.Mat, ksize int, verbose bool) (float64, error) {
	fields := map[string]string{
		"ksize":   fmt.Sprintf("%d", ksize),
		"verbose": fmt.Sprintf("%t", verbose),
	}
	data, err := c.postImage("/pwat", fields,
		map[string]gocv.Mat{"image": img, "segmentation": segmentation})
	if err != nil {
		return 0, fmt.Errorf("score evaluation request failed: %w", err)
	}

	var payload struct {
		PwatScore float64 `json:"pwat_score"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, fmt.Errorf("failed to parse score: %w", err)
	}
	return payload.PwatScore, nil
}

// postImage 以multipart形式提交PNG编码的图像和附加字段
func (c *DeepskinClient) postImage(path string, fields map[string]string, images map[string]gocv.Mat) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for name, mat := range images {
		encoded, err := c.codec.EncodePNG(mat)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", name, err)
		}
		part, err := writer.CreateFormFile(name, name+".png")
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(encoded); err != nil {
			return nil, err
		}
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("model server returned %d: %s", resp.StatusCode, string(detail))
	}

	return io.ReadAll(resp.Body)
}
