package service

import (
	"image"
	"image/color"

	"github.com/pankajk/Wound-Care/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// legendHeight 热力图下方图例条的高度
const legendHeight = 60

// MaskProcessor 负责分割结果的拆分、伤口周边掩码推导与可视化合成
type MaskProcessor struct {
	codec *ImageCodec
}

func NewMaskProcessor(codec *ImageCodec) *MaskProcessor {
	return &MaskProcessor{codec: codec}
}

// SplitSegmentation 将多通道分割结果拆分为伤口/躯体/背景掩码。
// 通道数少于2时视为仅有伤口掩码，躯体和背景补全零掩码。
func (mp *MaskProcessor) SplitSegmentation(seg gocv.Mat) (wound, body, background gocv.Mat) {
	rows := seg.Rows()
	cols := seg.Cols()

	if seg.Channels() >= 2 {
		channels := gocv.Split(seg)
		wound = channels[0]
		body = channels[1]
		if len(channels) > 2 {
			background = channels[2]
		} else {
			background = gocv.Zeros(rows, cols, gocv.MatTypeCV8U)
		}
		// 多余通道直接释放
		for i := 3; i < len(channels); i++ {
			channels[i].Close()
		}
		return wound, body, background
	}

	wound = seg.Clone()
	body = gocv.Zeros(rows, cols, gocv.MatTypeCV8U)
	background = gocv.Zeros(rows, cols, gocv.MatTypeCV8U)
	return wound, body, background
}

// PerilesionMask 将伤口掩码外扩ksize后减去伤口本体，得到环状候选区
func (mp *MaskProcessor) PerilesionMask(wound gocv.Mat, ksize int) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: ksize, Y: ksize})
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(wound, &dilated, kernel)

	ring := gocv.NewMat()
	gocv.Subtract(dilated, wound, &ring)
	return ring
}

// FillHoles 用外轮廓填充的方式闭合掩码内部空洞
func (mp *MaskProcessor) FillHoles(mask gocv.Mat) gocv.Mat {
	filled := gocv.Zeros(mask.Rows(), mask.Cols(), gocv.MatTypeCV8U)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return filled
	}

	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	gocv.DrawContours(&filled, contours, -1, white, -1)
	return filled
}

// DerivePerilesion 推导伤口周边掩码。躯体掩码非空时，用填充后的
// 躯体+伤口轮廓裁掉落在躯体之外的像素。该阶段失败只降级为全零掩码，
// 不中断整个分析。
func (mp *MaskProcessor) DerivePerilesion(wound, body gocv.Mat, ksize int) gocv.Mat {
	if wound.Empty() {
		return gocv.NewMat()
	}
	if !body.Empty() && (body.Rows() != wound.Rows() || body.Cols() != wound.Cols()) {
		utils.Logger.Warn("peri-wound derivation skipped, mask dimensions mismatch",
			zap.Int("wound_rows", wound.Rows()),
			zap.Int("body_rows", body.Rows()))
		return gocv.Zeros(wound.Rows(), wound.Cols(), gocv.MatTypeCV8U)
	}

	ring := mp.PerilesionMask(wound, ksize)

	if body.Empty() || gocv.CountNonZero(body) == 0 {
		return ring
	}
	defer ring.Close()

	union := gocv.NewMat()
	defer union.Close()
	gocv.BitwiseOr(body, wound, &union)

	silhouette := mp.FillHoles(union)
	defer silhouette.Close()

	refined := gocv.NewMat()
	gocv.BitwiseAndWithMask(ring, ring, &refined, silhouette)
	return refined
}

// ProcessSegmentation 顺序执行拆分和周边推导两个阶段。
// 单通道输入没有躯体上下文，周边掩码直接为全零。
func (mp *MaskProcessor) ProcessSegmentation(seg gocv.Mat, ksize int) (wound, body, background, peri gocv.Mat) {
	wound, body, background = mp.SplitSegmentation(seg)
	if seg.Channels() < 2 {
		peri = gocv.Zeros(wound.Rows(), wound.Cols(), gocv.MatTypeCV8U)
		return wound, body, background, peri
	}
	peri = mp.DerivePerilesion(wound, body, ksize)
	return wound, body, background, peri
}

// CreateVisualizations 合成五种可视化图像并编码为base64。
// 单个可视化失败只丢弃对应条目，不影响其它可视化。
func (mp *MaskProcessor) CreateVisualizations(img, wound, peri, body gocv.Mat) map[string]string {
	vis := make(map[string]string)
	if img.Empty() || wound.Empty() {
		return vis
	}

	green := color.RGBA{G: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}

	woundContours := gocv.FindContours(wound, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer woundContours.Close()

	// 1. 伤口外轮廓
	outline := img.Clone()
	if woundContours.Size() > 0 {
		gocv.DrawContours(&outline, woundContours, -1, green, 3)
	}
	mp.addVisualization(vis, "wound_outline", outline)
	outline.Close()

	// 2. 伤口+周边联合轮廓，周边画在下层
	combined := img.Clone()
	if !peri.Empty() && gocv.CountNonZero(peri) > 0 {
		periContours := gocv.FindContours(peri, gocv.RetrievalExternal, gocv.ChainApproxSimple)
		gocv.DrawContours(&combined, periContours, -1, blue, 2)
		periContours.Close()
	}
	if woundContours.Size() > 0 {
		gocv.DrawContours(&combined, woundContours, -1, green, 3)
	}
	mp.addVisualization(vis, "combined_outline", combined)
	combined.Close()

	// 3. 仅保留伤口区域
	woundOnly := gocv.NewMat()
	gocv.BitwiseAndWithMask(img, img, &woundOnly, wound)
	mp.addVisualization(vis, "wound_only", woundOnly)
	woundOnly.Close()

	// 4. 区域热力图 + 图例条
	heatmap := mp.composeHeatmap(img, wound, peri, body)
	mp.addVisualization(vis, "heatmap", heatmap)
	heatmap.Close()

	// 5. 叠加半透明纯色填充
	overlay := mp.composeOverlay(img, wound, peri)
	mp.addVisualization(vis, "overlay", overlay)
	overlay.Close()

	return vis
}

func (mp *MaskProcessor) addVisualization(vis map[string]string, name string, img gocv.Mat) {
	encoded := mp.codec.ImageToBase64(img)
	if encoded == "" {
		utils.Logger.Warn("visualization dropped", zap.String("name", name))
		return
	}
	vis[name] = encoded
}

// composeHeatmap 按伤口/周边/躯体顺序依次混入区域色调，再拼接图例
func (mp *MaskProcessor) composeHeatmap(img, wound, peri, body gocv.Mat) gocv.Mat {
	heatmap := img.Clone()

	// BGR色调: 伤口偏红、周边偏蓝、躯体偏绿
	mp.blendRegion(&heatmap, wound, gocv.NewScalar(100, 100, 255, 0), 0.4)
	mp.blendRegion(&heatmap, peri, gocv.NewScalar(255, 100, 100, 0), 0.4)
	mp.blendRegion(&heatmap, body, gocv.NewScalar(100, 255, 100, 0), 0.2)

	legend := gocv.Zeros(legendHeight, heatmap.Cols(), gocv.MatTypeCV8UC3)
	defer legend.Close()

	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}

	gocv.Rectangle(&legend, image.Rect(10, 10, 30, 30), red, -1)
	gocv.PutText(&legend, "Wound", image.Point{X: 40, Y: 25}, gocv.FontHersheySimplex, 0.5, white, 1)
	gocv.Rectangle(&legend, image.Rect(150, 10, 170, 30), blue, -1)
	gocv.PutText(&legend, "Peri-wound", image.Point{X: 180, Y: 25}, gocv.FontHersheySimplex, 0.5, white, 1)

	withLegend := gocv.NewMat()
	gocv.Vconcat(heatmap, legend, &withLegend)
	heatmap.Close()
	return withLegend
}

// composeOverlay 在原图上按0.3权重加性混合伤口红色、周边蓝色填充
func (mp *MaskProcessor) composeOverlay(img, wound, peri gocv.Mat) gocv.Mat {
	overlay := img.Clone()

	woundFill := mp.colorFill(img.Rows(), img.Cols(), gocv.NewScalar(0, 0, 255, 0), wound)
	defer woundFill.Close()
	gocv.AddWeighted(overlay, 1, woundFill, 0.3, 0, &overlay)

	if !peri.Empty() {
		periFill := mp.colorFill(img.Rows(), img.Cols(), gocv.NewScalar(255, 0, 0, 0), peri)
		defer periFill.Close()
		gocv.AddWeighted(overlay, 1, periFill, 0.3, 0, &overlay)
	}

	return overlay
}

// blendRegion 将掩码区域与纯色按权重混合回原图
func (mp *MaskProcessor) blendRegion(dst *gocv.Mat, mask gocv.Mat, tint gocv.Scalar, alpha float64) {
	if mask.Empty() || gocv.CountNonZero(mask) == 0 {
		return
	}

	fill := mp.colorFill(dst.Rows(), dst.Cols(), tint, mask)
	defer fill.Close()

	blended := gocv.NewMat()
	gocv.AddWeighted(*dst, 1-alpha, fill, alpha, 0, &blended)
	dst.Close()
	*dst = blended
}

// colorFill 生成掩码区域内为指定颜色、其余为零的三通道图
func (mp *MaskProcessor) colorFill(rows, cols int, tint gocv.Scalar, mask gocv.Mat) gocv.Mat {
	fill := gocv.Zeros(rows, cols, gocv.MatTypeCV8UC3)
	solid := gocv.NewMatWithSizeFromScalar(tint, rows, cols, gocv.MatTypeCV8UC3)
	defer solid.Close()
	solid.CopyToWithMask(&fill, mask)
	return fill
}
