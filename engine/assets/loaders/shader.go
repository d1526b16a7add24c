package loaders

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/spaghettifunk/anima-loader/engine/resources"
)

// First word of every SPIR-V module.
const spirvMagic uint32 = 0x07230203

type ShaderLoader struct{}

func (sl *ShaderLoader) Load(path string, assetType resources.ResourceType, params interface{}) (*resources.Resource, error) {
	// Read SPIR-V binary file and return the module as words
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	code, err := bytesToBytecode(data)
	if err != nil {
		return nil, fmt.Errorf("shader '%s': %w", path, err)
	}
	return &resources.Resource{
		Type:     assetType,
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     &resources.ShaderResourceData{Bytecode: code},
	}, nil
}

func (sl *ShaderLoader) Unload(res *resources.Resource) error {
	release(res)
	return nil
}

func bytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: SPIR-V size %d is not a multiple of 4", ErrMalformed, len(b))
	}
	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteCode[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if byteCode[0] != spirvMagic {
		return nil, fmt.Errorf("%w: bad SPIR-V magic 0x%08x", ErrMalformed, byteCode[0])
	}
	return byteCode, nil
}
