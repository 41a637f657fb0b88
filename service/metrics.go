package service

import (
	"math"

	"github.com/pankajk/Wound-Care/model"
	"gocv.io/x/gocv"
)

// MetricsCalculator 计算伤口掩码的几何指标
type MetricsCalculator struct{}

func NewMetricsCalculator() *MetricsCalculator {
	return &MetricsCalculator{}
}

// Calculate 基于最大外轮廓计算面积、周长、等效直径和边界框。
// 空掩码是合法输入，所有派生值为零。
func (mc *MetricsCalculator) Calculate(wound, peri gocv.Mat) *model.WoundMetrics {
	rows := wound.Rows()
	cols := wound.Cols()
	totalPixels := rows * cols

	woundPixels := gocv.CountNonZero(wound)
	periPixels := 0
	if !peri.Empty() {
		periPixels = gocv.CountNonZero(peri)
	}

	metrics := &model.WoundMetrics{
		WoundAreaPixels: woundPixels,
		PeriAreaPixels:  periPixels,
	}
	if totalPixels > 0 {
		metrics.WoundAreaPercentage = round2(float64(woundPixels) / float64(totalPixels) * 100)
		metrics.PeriAreaPercentage = round2(float64(periPixels) / float64(totalPixels) * 100)
	}

	contours := gocv.FindContours(wound, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return metrics
	}

	// 最大面积的轮廓为主轮廓，面积相同取先枚举到的
	mainIndex := 0
	maxArea := 0.0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > maxArea {
			maxArea = area
			mainIndex = i
		}
	}
	main := contours.At(mainIndex)

	metrics.WoundPerimeterPixels = int(gocv.ArcLength(main, true))

	// 等效直径按总像素量估算圆面积，而不是轮廓多边形面积
	if woundPixels > 0 {
		metrics.EstimatedDiameterPixels = round2(2 * math.Sqrt(float64(woundPixels)/math.Pi))
	}

	rect := gocv.BoundingRect(main)
	metrics.BoundingBox = model.BBox{
		X:      rect.Min.X,
		Y:      rect.Min.Y,
		Width:  rect.Dx(),
		Height: rect.Dy(),
	}

	return metrics
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
