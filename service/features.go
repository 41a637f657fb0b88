package service

import (
	"fmt"
	"math"
	"strings"
)

// 子串匹配的关键词表，按优先级依次判定。
// 颜色通道名带下划线锚定，避免"red"吞掉"redness"这类特征名。
var (
	textureKeywords    = []string{"contrast", "homogeneity", "energy", "correlation", "asm", "entropy"}
	colorKeywords      = []string{"red_", "green_", "blue_", "hue", "saturation", "value", "rgb"}
	morphologyKeywords = []string{"area", "perimeter", "circularity", "eccentricity", "solidity", "extent"}
	intensityKeywords  = []string{"mean", "std", "intensity"}
)

// FeatureClassifier 按特征名将扁平特征表归入语义类别
type FeatureClassifier struct{}

func NewFeatureClassifier() *FeatureClassifier {
	return &FeatureClassifier{}
}

// Classify 将特征表分类为 类别 -> {特征名 -> 归一化值}，空类别不输出
func (fc *FeatureClassifier) Classify(features map[string]any) map[string]map[string]any {
	result := make(map[string]map[string]any)
	if len(features) == 0 {
		return result
	}

	for key, value := range features {
		category := fc.categorize(key)
		if result[category] == nil {
			result[category] = make(map[string]any)
		}
		result[category][key] = normalizeValue(value)
	}

	return result
}

func (fc *FeatureClassifier) categorize(key string) string {
	lower := strings.ToLower(key)
	switch {
	case containsAny(lower, textureKeywords):
		return "Texture"
	case containsAny(lower, colorKeywords):
		return "Color"
	case containsAny(lower, morphologyKeywords):
		return "Morphology"
	case containsAny(lower, intensityKeywords):
		return "Intensity"
	default:
		return "Other"
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// normalizeValue 整数保持整数，浮点数保留4位小数，其余转为字符串
func normalizeValue(value any) any {
	switch v := value.(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float32:
		return round4(float64(v))
	case float64:
		return round4(v)
	default:
		return fmt.Sprint(v)
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
