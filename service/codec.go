package service

import (
	"encoding/base64"
	"fmt"
	"image"

	"github.com/pankajk/Wound-Care/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// jpegQuality 照片类图像的固定压缩质量
const jpegQuality = 85

// ImageCodec 图像编解码适配器
type ImageCodec struct{}

func NewImageCodec() *ImageCodec {
	return &ImageCodec{}
}

// DecodeImage 将上传的字节解码为BGR彩色矩阵
func (ic *ImageCodec) DecodeImage(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), fmt.Errorf("empty image buffer")
	}

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), fmt.Errorf("invalid image format")
	}
	return img, nil
}

// EncodeJPEG 以固定质量编码为JPEG字节
func (ic *ImageCodec) EncodeJPEG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, jpegQuality})
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// EncodePNG 无损编码为PNG字节，用于掩码和分割图
func (ic *ImageCodec) EncodePNG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// ImageToBase64 将照片编码为base64 JPEG；编码失败返回空串而不是错误
func (ic *ImageCodec) ImageToBase64(img gocv.Mat) string {
	if img.Empty() {
		return ""
	}

	data, err := ic.EncodeJPEG(img)
	if err != nil {
		utils.Logger.Error("failed to encode image", zap.Error(err))
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// MaskToBase64 将二值掩码归一化为0/255后编码为base64 PNG
func (ic *ImageCodec) MaskToBase64(mask gocv.Mat) string {
	if mask.Empty() {
		return ""
	}

	vis := gocv.NewMat()
	defer vis.Close()
	gocv.Threshold(mask, &vis, 0, 255, gocv.ThresholdBinary)

	data, err := ic.EncodePNG(vis)
	if err != nil {
		utils.Logger.Error("failed to encode mask", zap.Error(err))
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// SegmentationToBase64 多通道分割结果直接编码为base64 PNG
func (ic *ImageCodec) SegmentationToBase64(seg gocv.Mat) string {
	if seg.Empty() {
		return ""
	}

	data, err := ic.EncodePNG(seg)
	if err != nil {
		utils.Logger.Error("failed to encode segmentation", zap.Error(err))
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// ResizeToFit 等比缩放使最长边不超过maxSide，小图原样克隆
func (ic *ImageCodec) ResizeToFit(img gocv.Mat, maxSide int) gocv.Mat {
	width := img.Cols()
	height := img.Rows()
	maxDim := max(width, height)
	if maxDim <= maxSide {
		return img.Clone()
	}

	scale := float64(maxSide) / float64(maxDim)
	newWidth := int(float64(width) * scale)
	newHeight := int(float64(height) * scale)

	resized := gocv.NewMat()
	gocv.Resize(img, &resized, image.Point{X: newWidth, Y: newHeight}, 0, 0, gocv.InterpolationLanczos4)

	return resized
}
