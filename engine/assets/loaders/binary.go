package loaders

import (
	"os"

	"github.com/spaghettifunk/anima-loader/engine/resources"
)

type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string, assetType resources.ResourceType, params interface{}) (*resources.Resource, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &resources.Resource{
		Type:     assetType,
		FullPath: path,
		DataSize: uint64(len(buf)),
		Data:     buf,
	}, nil
}

func (bl *BinaryLoader) Unload(res *resources.Resource) error {
	release(res)
	return nil
}

type TextLoader struct{}

func (tl *TextLoader) Load(path string, assetType resources.ResourceType, params interface{}) (*resources.Resource, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &resources.Resource{
		Type:     assetType,
		FullPath: path,
		DataSize: uint64(len(buf)),
		Data:     string(buf),
	}, nil
}

func (tl *TextLoader) Unload(res *resources.Resource) error {
	release(res)
	return nil
}

// release drops the loader-owned payload so the resource can be collected.
func release(res *resources.Resource) {
	if res == nil {
		return
	}
	res.Data = nil
	res.DataSize = 0
}
