package assets

import "github.com/spaghettifunk/anima-loader/engine/resources"

// Loader decodes one resource type. Implementations are called concurrently
// from loader workers and must not keep per-call state on the receiver.
type Loader interface {
	Load(path string, assetType resources.ResourceType, params interface{}) (*resources.Resource, error)
	Unload(*resources.Resource) error
}
