package loaders

import (
	"cmp"
	"fmt"
	"slices"
	"unsafe"

	"github.com/fzipp/bmfont"

	"github.com/spaghettifunk/anima-loader/engine/resources"
)

// BitmapFontLoader imports AngelCode .fnt descriptors. Page images are
// resolved relative to the descriptor and must exist.
type BitmapFontLoader struct{}

func (fl *BitmapFontLoader) Load(path string, assetType resources.ResourceType, params interface{}) (*resources.Resource, error) {
	rd, err := importFNTFile(path)
	if err != nil {
		return nil, fmt.Errorf("bitmap font '%s': %w", path, err)
	}
	size := uint64(unsafe.Sizeof(resources.FontGlyph{}))*uint64(len(rd.Data.Glyphs)) +
		uint64(unsafe.Sizeof(resources.FontKerning{}))*uint64(len(rd.Data.Kernings))
	return &resources.Resource{
		Type:     assetType,
		Name:     rd.Data.Face,
		FullPath: path,
		DataSize: size,
		Data:     rd,
	}, nil
}

func (fl *BitmapFontLoader) Unload(res *resources.Resource) error {
	if res == nil {
		return nil
	}
	if data, ok := res.Data.(*resources.BitmapFontResourceData); ok && data != nil {
		data.Pages = nil
		if data.Data != nil {
			data.Data.Glyphs = nil
			data.Data.Kernings = nil
		}
	}
	release(res)
	return nil
}

func importFNTFile(path string) (*resources.BitmapFontResourceData, error) {
	font, err := bmfont.Load(path)
	if err != nil {
		return nil, err
	}
	desc := font.Descriptor

	out := &resources.BitmapFontResourceData{
		Data: &resources.FontData{
			Face:       desc.Info.Face,
			Size:       uint32(desc.Info.Size),
			LineHeight: int32(desc.Common.LineHeight),
			Baseline:   int32(desc.Common.Base),
			AtlasSizeX: int32(desc.Common.ScaleW),
			AtlasSizeY: int32(desc.Common.ScaleH),
			Glyphs:     make([]*resources.FontGlyph, 0, len(desc.Chars)),
			Kernings:   make([]*resources.FontKerning, 0, len(desc.Kerning)),
		},
		Pages: make([]*resources.BitmapFontPage, 0, len(desc.Pages)),
	}

	for _, p := range desc.Pages {
		out.Pages = append(out.Pages, &resources.BitmapFontPage{
			ID:   int8(p.ID),
			File: p.File,
		})
	}
	slices.SortFunc(out.Pages, func(a, b *resources.BitmapFontPage) int {
		return cmp.Compare(a.ID, b.ID)
	})

	for _, g := range desc.Chars {
		out.Data.Glyphs = append(out.Data.Glyphs, &resources.FontGlyph{
			Codepoint: int32(g.ID),
			X:         uint16(g.X),
			Y:         uint16(g.Y),
			Width:     uint16(g.Width),
			Height:    uint16(g.Height),
			XOffset:   int16(g.XOffset),
			YOffset:   int16(g.YOffset),
			XAdvance:  int16(g.XAdvance),
			PageID:    uint8(g.Page),
		})
	}
	slices.SortFunc(out.Data.Glyphs, func(a, b *resources.FontGlyph) int {
		return cmp.Compare(a.Codepoint, b.Codepoint)
	})

	for pair, k := range desc.Kerning {
		out.Data.Kernings = append(out.Data.Kernings, &resources.FontKerning{
			Codepoint0: int32(pair.First),
			Codepoint1: int32(pair.Second),
			Amount:     int16(k.Amount),
		})
	}
	slices.SortFunc(out.Data.Kernings, func(a, b *resources.FontKerning) int {
		if c := cmp.Compare(a.Codepoint0, b.Codepoint0); c != 0 {
			return c
		}
		return cmp.Compare(a.Codepoint1, b.Codepoint1)
	})

	return out, nil
}
