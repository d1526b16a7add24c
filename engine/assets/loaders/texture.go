package loaders

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/anima-loader/engine/resources"
)

type TextureLoader struct{}

func (tl *TextureLoader) Load(path string, assetType resources.ResourceType, params interface{}) (*resources.Resource, error) {
	if strings.EqualFold(filepath.Ext(path), ".tga") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	flipY := false
	if p, ok := params.(*resources.ImageResourceParams); ok && p != nil {
		flipY = p.FlipY
	}

	// Open and decode the texture image file
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file) // png, jpeg, bmp, tiff, webp
	if err != nil {
		return nil, fmt.Errorf("decode '%s': %w", path, err)
	}

	data := imageToRGBA(img, flipY)
	return &resources.Resource{
		Type:     assetType,
		FullPath: path,
		DataSize: uint64(len(data.Pixels)),
		Data:     data,
	}, nil
}

func (tl *TextureLoader) Unload(res *resources.Resource) error {
	release(res)
	return nil
}

func imageToRGBA(img image.Image, flipY bool) *resources.ImageResourceData {
	bounds := img.Bounds()
	rgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	width, height := bounds.Dx(), bounds.Dy()
	rowSize := width * 4
	pixels := make([]uint8, rowSize*height)
	for y := 0; y < height; y++ {
		src := y
		if flipY {
			src = height - 1 - y
		}
		copy(pixels[y*rowSize:(y+1)*rowSize], rgba.Pix[src*rgba.Stride:src*rgba.Stride+rowSize])
	}

	transparent := false
	for i := 3; i < len(pixels); i += 4 {
		if pixels[i] != 255 {
			transparent = true
			break
		}
	}

	return &resources.ImageResourceData{
		ChannelCount:    4,
		Width:           uint32(width),
		Height:          uint32(height),
		Pixels:          pixels,
		HasTransparency: transparent,
	}
}
