package model

// AnalysisResult 完整的伤口分析结果
type AnalysisResult struct {
	Success      bool     `json:"success"`
	Error        string   `json:"error,omitempty"`
	PwatScore    float64  `json:"pwat_score"`
	PwatSeverity Severity `json:"pwat_severity"`
	// WoundDetected 伤口掩码中是否存在非零像素
	WoundDetected bool `json:"wound_detected"`

	// OriginalImage base64编码的原图 (JPEG)
	OriginalImage string `json:"original_image,omitempty"`
	// Visualizations 可视化名称 -> base64图像
	Visualizations map[string]string `json:"visualizations,omitempty"`
	// Masks 掩码名称 -> base64图像 (PNG)
	Masks map[string]string `json:"masks,omitempty"`

	// Features 分类后的特征: 类别 -> {特征名 -> 值}
	Features map[string]map[string]any `json:"features,omitempty"`

	WoundMetrics *WoundMetrics `json:"wound_metrics,omitempty"`
	Raw          *RawCounts    `json:"raw,omitempty"`
}

// Severity PWAT评分对应的临床严重程度
type Severity struct {
	Level       string `json:"level"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// WoundMetrics 伤口几何指标
type WoundMetrics struct {
	WoundAreaPixels         int     `json:"wound_area_pixels"`
	WoundAreaPercentage     float64 `json:"wound_area_percentage"`
	PeriAreaPixels          int     `json:"peri_area_pixels"`
	PeriAreaPercentage      float64 `json:"peri_area_percentage"`
	WoundPerimeterPixels    int     `json:"wound_perimeter_pixels"`
	EstimatedDiameterPixels float64 `json:"estimated_diameter_pixels"`
	BoundingBox             BBox    `json:"bounding_box"`
}

// BBox 边界框
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RawCounts 原始像素统计
type RawCounts struct {
	WoundAreaPixels int        `json:"wound_area_pixels"`
	PeriAreaPixels  int        `json:"peri_area_pixels"`
	BodyAreaPixels  int        `json:"body_area_pixels"`
	ImageDimensions Dimensions `json:"image_dimensions"`
}

// Dimensions 图像尺寸
type Dimensions struct {
	Height int `json:"height"`
	Width  int `json:"width"`
}

// NarrativeResult 远程视觉语言模型的分析结果
type NarrativeResult struct {
	Success   bool   `json:"success"`
	Analysis  string `json:"analysis,omitempty"`
	ModelUsed string `json:"model_used,omitempty"`
	// Strategy 成功(或最后失败)的策略标识: bytes / pil / simple
	Strategy    string `json:"strategy,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	WithHistory bool   `json:"with_history,omitempty"`
	Note        string `json:"note,omitempty"`

	Error           string   `json:"error,omitempty"`
	Details         string   `json:"details,omitempty"`
	AvailableModels []string `json:"available_models,omitempty"`
}

// AnalyzeResponse /analyze接口的顶层响应
type AnalyzeResponse struct {
	Filename string           `json:"filename"`
	Deepskin *AnalysisResult  `json:"deepskin"`
	Gemini   *NarrativeResult `json:"gemini"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
