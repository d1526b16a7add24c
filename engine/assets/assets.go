package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/anima-loader/engine/assets/loaders"
	"github.com/spaghettifunk/anima-loader/engine/core"
	"github.com/spaghettifunk/anima-loader/engine/resources"
)

var (
	ErrNoLoader      = errors.New("no loader registered for resource type")
	ErrWatcherClosed = errors.New("asset watcher already closed")
)

type AssetInfo struct {
	Path       string
	Type       resources.ResourceType
	Size       int64
	ModTime    time.Time
	LastLoaded time.Time
}

/**
 * @brief Resource factory backed by the file system. Resolves relative paths
 * against the asset base path, dispatches to the loader registered for the
 * resource type and optionally watches the tree for changes.
 */
type AssetManager struct {
	basePath string
	assets   map[string]AssetInfo
	loaders  map[resources.ResourceType]Loader
	params   map[resources.ResourceType]interface{}

	mutex sync.RWMutex

	done      chan struct{}
	fsnotify  *fsnotify.Watcher
	isClosed  bool
	closeOnce sync.Once
	changes   chan string
	errors    chan error
}

func NewAssetManager(basePath string) (*AssetManager, error) {
	if basePath != "" {
		info, err := os.Stat(basePath)
		if err != nil {
			return nil, fmt.Errorf("asset base path: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("asset base path '%s' is not a directory", basePath)
		}
	}

	am := &AssetManager{
		basePath: basePath,
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[resources.ResourceType]Loader),
		params:   make(map[resources.ResourceType]interface{}),
		changes:  make(chan string, 256),
		errors:   make(chan error, 16),
		done:     make(chan struct{}),
	}

	// Register loaders
	am.RegisterLoader(resources.ResourceTypeText, &loaders.TextLoader{})
	am.RegisterLoader(resources.ResourceTypeBinary, &loaders.BinaryLoader{})
	am.RegisterLoader(resources.ResourceTypeTexture, &loaders.TextureLoader{})
	am.RegisterLoader(resources.ResourceTypeMaterial, &loaders.MaterialLoader{})
	am.RegisterLoader(resources.ResourceTypeShader, &loaders.ShaderLoader{})
	am.RegisterLoader(resources.ResourceTypeMesh, &loaders.MeshLoader{})
	am.RegisterLoader(resources.ResourceTypeSound, &loaders.SoundLoader{})
	am.RegisterLoader(resources.ResourceTypeAnimation, &loaders.AnimationLoader{})
	am.RegisterLoader(resources.ResourceTypeBitmapFont, &loaders.BitmapFontLoader{})
	am.RegisterLoader(resources.ResourceTypeSystemFont, &loaders.SystemFontLoader{})

	am.SetParams(resources.ResourceTypeTexture, &resources.ImageResourceParams{FlipY: false})

	return am, nil
}

func (am *AssetManager) BasePath() string {
	return am.basePath
}

// Register loaders for each asset type. Replaces any previous loader.
func (am *AssetManager) RegisterLoader(assetType resources.ResourceType, loader Loader) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.loaders[assetType] = loader
}

// SetParams sets the loader parameters used for every load of assetType.
func (am *AssetManager) SetParams(assetType resources.ResourceType, params interface{}) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.params[assetType] = params
}

// Resolve returns the on-disk location of an asset path.
func (am *AssetManager) Resolve(path string) string {
	if am.basePath == "" || filepath.IsAbs(path) {
		return filepath.FromSlash(path)
	}
	return filepath.Join(am.basePath, filepath.FromSlash(path))
}

// Construct loads an asset using the appropriate loader. Safe for concurrent use.
func (am *AssetManager) Construct(path string, assetType resources.ResourceType) (*resources.Resource, error) {
	am.mutex.RLock()
	loader, loaderExists := am.loaders[assetType]
	params := am.params[assetType]
	am.mutex.RUnlock()
	if !loaderExists {
		return nil, fmt.Errorf("%w: %s", ErrNoLoader, assetType)
	}

	res, err := loader.Load(am.Resolve(path), assetType, params)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	if res.Name == "" {
		res.Name = path
	}
	res.Type = assetType

	am.mutex.Lock()
	info, ok := am.assets[path]
	if !ok {
		info = AssetInfo{Path: path, Type: assetType}
	}
	info.LastLoaded = time.Now()
	am.assets[path] = info
	am.mutex.Unlock()

	return res, nil
}

// Unload hands the resource back to the loader that created it.
func (am *AssetManager) Unload(res *resources.Resource) error {
	if res == nil {
		return nil
	}
	am.mutex.RLock()
	loader, ok := am.loaders[res.Type]
	am.mutex.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoLoader, res.Type)
	}
	return loader.Unload(res)
}

// Info returns what is known about an asset path.
func (am *AssetManager) Info(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[path]
	return info, ok
}

/**
 * @brief Walks the base path and indexes every file with a known resource type.
 * @returns The indexed assets with paths relative to the base path, slash separated.
 */
func (am *AssetManager) Scan() ([]AssetInfo, error) {
	if am.basePath == "" {
		return nil, nil
	}
	var out []AssetInfo
	err := filepath.WalkDir(am.basePath, func(walkPath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, ok := am.relative(walkPath)
		if !ok {
			return nil
		}
		assetType := DetermineAssetType(rel)
		if assetType == resources.ResourceTypeNone {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, am.index(rel, assetType, fi))
		return nil
	})
	return out, err
}

/**
 * @brief Starts watching the base path and all sub-directories. Changed asset
 * paths are published on Changes.
 */
func (am *AssetManager) Watch() error {
	if am.basePath == "" {
		return fmt.Errorf("cannot watch assets without a base path")
	}
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return ErrWatcherClosed
	}
	if am.fsnotify != nil {
		am.mutex.Unlock()
		return nil
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		am.mutex.Unlock()
		return err
	}
	am.fsnotify = fsWatch
	am.mutex.Unlock()

	go am.start()
	if err := am.watchRecursive(am.basePath); err != nil {
		return err
	}
	core.LogInfo("Watching '%s' for asset changes.", am.basePath)
	return nil
}

// Changes delivers slash-separated asset paths relative to the base path.
func (am *AssetManager) Changes() <-chan string {
	return am.changes
}

// Errors delivers watcher errors.
func (am *AssetManager) Errors() <-chan error {
	return am.errors
}

func (am *AssetManager) Close() error {
	am.closeOnce.Do(func() {
		am.mutex.Lock()
		am.isClosed = true
		watching := am.fsnotify != nil
		am.mutex.Unlock()
		close(am.done)
		if !watching {
			close(am.changes)
			close(am.errors)
		}
	})
	return nil
}

func (am *AssetManager) start() {
	for {
		select {

		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name); err != nil {
						core.LogWarn("failed to watch new directory '%s': %s", e.Name, err)
					}
				}
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name)
			}
			//Can't stat a deleted directory, so just pretend that it's always a directory and
			//try to remove from the watch list...  we really have no clue if it's a directory or not...
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(e.Name)
				_ = am.fsnotify.Remove(e.Name)
			}

		case e, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("%s", e.Error())
			select {
			case am.errors <- e:
			default:
			}

		case <-am.done:
			am.fsnotify.Close()
			close(am.changes)
			close(am.errors)
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list.
// Files created before the watch is in place are indexed by the walk itself.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.WalkDir(path, func(walkPath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		if rel, ok := am.relative(walkPath); ok {
			if assetType := DetermineAssetType(rel); assetType != resources.ResourceTypeNone {
				fi, _ := d.Info()
				am.index(rel, assetType, fi)
			}
		}
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) {
	rel, ok := am.relative(path)
	if !ok {
		return
	}
	assetType := DetermineAssetType(rel)
	if assetType == resources.ResourceTypeNone {
		return
	}
	fi, _ := os.Stat(path)
	am.index(rel, assetType, fi)

	select {
	case am.changes <- rel:
	default:
		core.LogWarn("asset change queue full, dropping change for '%s'", rel)
	}
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	rel, ok := am.relative(path)
	if !ok {
		return
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	delete(am.assets, rel)
}

// index records rel with its current size and modification time. fi can be nil.
func (am *AssetManager) index(rel string, assetType resources.ResourceType, fi os.FileInfo) AssetInfo {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	info, ok := am.assets[rel]
	if !ok {
		info = AssetInfo{Path: rel, Type: assetType}
	}
	if fi != nil {
		info.Size = fi.Size()
		info.ModTime = fi.ModTime()
	}
	am.assets[rel] = info
	return info
}

func (am *AssetManager) relative(path string) (string, bool) {
	rel, err := filepath.Rel(am.basePath, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// DetermineAssetType maps a file extension to the resource type that loads it.
func DetermineAssetType(path string) resources.ResourceType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp", ".tga":
		return resources.ResourceTypeTexture
	case ".amt":
		return resources.ResourceTypeMaterial
	case ".spv":
		return resources.ResourceTypeShader
	case ".obj":
		return resources.ResourceTypeMesh
	case ".wav":
		return resources.ResourceTypeSound
	case ".anim":
		return resources.ResourceTypeAnimation
	case ".fnt":
		return resources.ResourceTypeBitmapFont
	case ".fontcfg":
		return resources.ResourceTypeSystemFont
	case ".bin":
		return resources.ResourceTypeBinary
	case ".txt", ".json", ".cfg":
		return resources.ResourceTypeText
	default:
		return resources.ResourceTypeNone
	}
}
