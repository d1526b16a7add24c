package loaders

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"github.com/spaghettifunk/anima-loader/engine/core"
	"github.com/spaghettifunk/anima-loader/engine/resources"
)

type MaterialLoader struct{}

func (ml *MaterialLoader) Load(path string, assetType resources.ResourceType, params interface{}) (*resources.Resource, error) {
	mCfg, err := parseAMTFile(path)
	if err != nil {
		return nil, err
	}
	return &resources.Resource{
		Type:     assetType,
		Name:     mCfg.Name,
		FullPath: path,
		DataSize: uint64(unsafe.Sizeof(resources.MaterialConfig{})),
		Data:     mCfg,
	}, nil
}

func parseAMTFile(filename string) (*resources.MaterialConfig, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	materialConfig := &resources.MaterialConfig{
		DiffuseColour: resources.Vec4{X: 1, Y: 1, Z: 1, W: 1},
		AutoRelease:   true,
	}

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())

		// Skip comments and empty lines
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}

		// Split key-value pairs by the first "=" sign
		key, value, found := strings.Cut(line, "=")
		if !found {
			core.LogWarn("%s:%d: skipping invalid line '%s'", filename, lineNumber, line)
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		// Parse each field based on the key
		switch key {
		case "version":
			// only version 1 exists
		case "name":
			materialConfig.Name = value
		case "shader":
			materialConfig.ShaderName = value
		case "diffuse_colour":
			colour, err := parseVec4(value)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: invalid diffuse_colour: %w", filename, lineNumber, err)
			}
			materialConfig.DiffuseColour = colour
		case "shininess":
			shininess, err := strconv.ParseFloat(value, 32)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: invalid shininess value: %s", filename, lineNumber, value)
			}
			materialConfig.Shininess = float32(shininess)
		case "diffuse_map_name":
			materialConfig.DiffuseMapName = value
		case "specular_map_name":
			materialConfig.SpecularMapName = value
		case "normal_map_name":
			materialConfig.NormalMapName = value
		case "autorelease":
			autoRelease, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: invalid autorelease value: %s", filename, lineNumber, value)
			}
			materialConfig.AutoRelease = autoRelease
		default:
			core.LogWarn("Unknown key '%s' found in file '%s'. Skipping...", key, filename)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	// Perform validation
	if err := validateMaterial(materialConfig); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return materialConfig, nil
}

func parseVec4(value string) (resources.Vec4, error) {
	fields := strings.Fields(value)
	if len(fields) != 4 {
		return resources.Vec4{}, fmt.Errorf("expected 4 values, got %d", len(fields))
	}
	var out [4]float32
	for i, v := range fields {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return resources.Vec4{}, fmt.Errorf("invalid value '%s'", v)
		}
		out[i] = float32(f)
	}
	return resources.Vec4{X: out[0], Y: out[1], Z: out[2], W: out[3]}, nil
}

func validateMaterial(material *resources.MaterialConfig) error {
	if material.Name == "" {
		return fmt.Errorf("%w: material name is required", ErrMalformed)
	}

	if material.ShaderName == "" {
		return fmt.Errorf("%w: shader name is required", ErrMalformed)
	}

	// Check that DiffuseColour values are within [0.0, 1.0] range
	if !isValidVec4(material.DiffuseColour) {
		return fmt.Errorf("%w: diffuse_colour values must be between 0.0 and 1.0", ErrMalformed)
	}

	// Check shininess for a non-negative value
	if material.Shininess < 0 {
		return fmt.Errorf("%w: shininess must be a non-negative value", ErrMalformed)
	}

	return nil
}

// Helper function to validate Vec4 fields (must be between 0.0 and 1.0)
func isValidVec4(v resources.Vec4) bool {
	return inRange(v.X) && inRange(v.Y) && inRange(v.Z) && inRange(v.W)
}

// Check if a float32 value is within [0.0, 1.0]
func inRange(value float32) bool {
	return value >= 0.0 && value <= 1.0
}

func (ml *MaterialLoader) Unload(res *resources.Resource) error {
	release(res)
	return nil
}
