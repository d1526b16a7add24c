package loaders

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-loader/engine/resources"
)

// AnimationLoader decodes .anim clips written in TOML:
//
//	name = "walk"
//	duration = 1.0
//	looping = true
//
//	[[tracks]]
//	target = "hips"
//	property = "translation"
//	keyframes = [ { time = 0.0, value = [0, 0, 0] }, { time = 1.0, value = [0, 1, 0] } ]
type AnimationLoader struct{}

func (al *AnimationLoader) Load(path string, assetType resources.ResourceType, params interface{}) (*resources.Resource, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	clip := &resources.AnimationResourceData{}
	if err := toml.Unmarshal(buf, clip); err != nil {
		return nil, fmt.Errorf("%w: animation '%s': %v", ErrMalformed, path, err)
	}
	if clip.Name == "" {
		clip.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := validateAnimation(clip); err != nil {
		return nil, fmt.Errorf("animation '%s': %w", path, err)
	}

	size := uint64(unsafe.Sizeof(*clip))
	for _, t := range clip.Tracks {
		for _, k := range t.Keyframes {
			size += 4 + uint64(len(k.Value))*4
		}
	}
	return &resources.Resource{
		Type:     assetType,
		FullPath: path,
		DataSize: size,
		Data:     clip,
	}, nil
}

func (al *AnimationLoader) Unload(res *resources.Resource) error {
	release(res)
	return nil
}

func validateAnimation(clip *resources.AnimationResourceData) error {
	if clip.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrMalformed)
	}
	for i, t := range clip.Tracks {
		if t.Target == "" {
			return fmt.Errorf("%w: track %d has no target", ErrMalformed, i)
		}
		prev := float32(-1)
		for j, k := range t.Keyframes {
			if k.Time < 0 || k.Time > clip.Duration {
				return fmt.Errorf("%w: track '%s' keyframe %d at %.3f outside [0, %.3f]", ErrMalformed, t.Target, j, k.Time, clip.Duration)
			}
			if k.Time <= prev {
				return fmt.Errorf("%w: track '%s' keyframes are not in increasing time order", ErrMalformed, t.Target)
			}
			prev = k.Time
		}
	}
	return nil
}
