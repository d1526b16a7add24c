package loaders

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/font/opentype"

	"github.com/spaghettifunk/anima-loader/engine/resources"
)

// SystemFontLoader reads a .fontcfg file naming a TrueType/OpenType binary
// and the faces to use from it:
//
//	file=NotoSans.ttf
//	face=Noto Sans
//
// The binary path is relative to the .fontcfg file.
type SystemFontLoader struct{}

func (fl *SystemFontLoader) Load(path string, assetType resources.ResourceType, params interface{}) (*resources.Resource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	rd := &resources.SystemFontResourceData{
		Fonts: []*resources.SystemFontFace{},
	}
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip comments and empty lines
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("%w: font config '%s': bad line '%s'", ErrMalformed, path, line)
		}
		value = strings.TrimSpace(value)

		switch strings.TrimSpace(key) {
		case "file":
			fontPath := value
			if !filepath.IsAbs(fontPath) {
				fontPath = filepath.Join(filepath.Dir(path), fontPath)
			}
			fontBytes, err := os.ReadFile(fontPath)
			if err != nil {
				return nil, err
			}
			f, err := opentype.ParseCollection(fontBytes)
			if err != nil {
				return nil, fmt.Errorf("%w: font '%s': %v", ErrMalformed, fontPath, err)
			}
			rd.FontBinary = f
			rd.BinarySize = uint64(len(fontBytes))
		case "face":
			rd.Fonts = append(rd.Fonts, &resources.SystemFontFace{
				Name: value,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if rd.FontBinary == nil {
		return nil, fmt.Errorf("%w: font config '%s' names no file", ErrMalformed, path)
	}
	if len(rd.Fonts) == 0 {
		return nil, fmt.Errorf("%w: font config '%s' names no face", ErrMalformed, path)
	}

	return &resources.Resource{
		Type:     assetType,
		FullPath: path,
		DataSize: rd.BinarySize,
		Data:     rd,
	}, nil
}

func (fl *SystemFontLoader) Unload(res *resources.Resource) error {
	if res == nil {
		return nil
	}
	if data, ok := res.Data.(*resources.SystemFontResourceData); ok && data != nil {
		data.FontBinary = nil
		data.Fonts = nil
	}
	release(res)
	return nil
}
