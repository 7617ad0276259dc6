package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// CompressImage 将图片重新编码为 JPEG 并压缩到指定大小以下。
// 带透明通道的图片先平铺到白色背景上。从质量 95 开始编码，
// 超限则每次降低 5，直到满足大小或降到质量下限 10。
// 相同的输入字节产生相同的输出。
func CompressImage(data []byte, maxSizeMB int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("解码图片失败: %w", err)
	}

	// 透明通道平铺到白色背景，避免 JPEG 编码出现黑底
	if o, ok := img.(interface{ Opaque() bool }); !ok || !o.Opaque() {
		background := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		img = imaging.Overlay(background, img, image.Pt(0, 0), 1.0)
	}

	if maxSizeMB <= 0 {
		maxSizeMB = 2
	}
	limit := maxSizeMB * 1024 * 1024

	quality := 95
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("编码图片失败: %w", err)
	}

	for buf.Len() > limit && quality > 10 {
		quality -= 5
		buf.Reset()
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, fmt.Errorf("编码图片失败: %w", err)
		}
	}

	return buf.Bytes(), nil
}
