package pipeline

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jpegMagic 是 JPEG 文件头。
var jpegMagic = []byte{0xFF, 0xD8}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCompressImageProducesJPEGUnderLimit(t *testing.T) {
	// 噪声图几乎不可压缩，迫使质量循环往下走
	rng := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, 1600, 1600))
	for i := range img.Pix {
		if i%4 == 3 {
			img.Pix[i] = 255
		} else {
			img.Pix[i] = byte(rng.Intn(256))
		}
	}

	out, err := CompressImage(encodePNG(t, img), 2)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, jpegMagic))
	assert.LessOrEqual(t, len(out), 2*1024*1024)
}

func TestCompressImageFlattensAlphaOnWhite(t *testing.T) {
	// 完全透明的图片压平后应当是白底
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))

	out, err := CompressImage(encodePNG(t, img), 2)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	r, g, b, _ := decoded.At(16, 16).RGBA()
	// JPEG 有损编码，允许少量偏差
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestCompressImageDeterministic(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, color.RGBA{R: byte(x * 4), G: byte(y * 4), B: 128, A: 255})
		}
	}
	data := encodePNG(t, img)

	first, err := CompressImage(data, 2)
	require.NoError(t, err)
	second, err := CompressImage(data, 2)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCompressImageRejectsGarbage(t *testing.T) {
	_, err := CompressImage([]byte("not an image"), 2)
	assert.Error(t, err)
}
