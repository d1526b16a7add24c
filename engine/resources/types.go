package resources

import (
	"fmt"
	"time"

	"golang.org/x/image/font/sfnt"
)

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	/** @brief Unknown or unsupported resource. */
	ResourceTypeNone ResourceType = iota
	/** @brief Text resource type. */
	ResourceTypeText
	/** @brief Binary resource type. */
	ResourceTypeBinary
	/** @brief Texture resource type (decoded image). */
	ResourceTypeTexture
	/** @brief Material resource type. */
	ResourceTypeMaterial
	/** @brief Shader resource type (SPIR-V bytecode). */
	ResourceTypeShader
	/** @brief Mesh resource type (collection of geometry). */
	ResourceTypeMesh
	/** @brief Sound resource type (PCM samples). */
	ResourceTypeSound
	/** @brief Animation clip resource type. */
	ResourceTypeAnimation
	/** @brief Bitmap font resource type. */
	ResourceTypeBitmapFont
	/** @brief System font resource type. */
	ResourceTypeSystemFont

	resourceTypeCount
)

var resourceTypeNames = [...]string{
	ResourceTypeNone:       "none",
	ResourceTypeText:       "text",
	ResourceTypeBinary:     "binary",
	ResourceTypeTexture:    "texture",
	ResourceTypeMaterial:   "material",
	ResourceTypeShader:     "shader",
	ResourceTypeMesh:       "mesh",
	ResourceTypeSound:      "sound",
	ResourceTypeAnimation:  "animation",
	ResourceTypeBitmapFont: "bitmap_font",
	ResourceTypeSystemFont: "system_font",
}

func (rt ResourceType) String() string {
	if rt < 0 || rt >= resourceTypeCount {
		return fmt.Sprintf("resource_type(%d)", int(rt))
	}
	return resourceTypeNames[rt]
}

// Valid reports whether rt names a loadable resource type.
func (rt ResourceType) Valid() bool {
	return rt > ResourceTypeNone && rt < resourceTypeCount
}

// ResourceTypes lists every loadable resource type.
func ResourceTypes() []ResourceType {
	out := make([]ResourceType, 0, resourceTypeCount-1)
	for rt := ResourceTypeNone + 1; rt < resourceTypeCount; rt++ {
		out = append(out, rt)
	}
	return out
}

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	/** @brief The resource type. */
	Type ResourceType
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The size of the resource data in bytes. */
	DataSize uint64
	/** @brief The resource data. One of the *ResourceData types below. */
	Data interface{}
	/** @brief When the resource finished constructing. */
	LoadedAt time.Time
}

/**
 * @brief A structure to hold image resource data.
 */
type ImageResourceData struct {
	/** @brief The number of channels. */
	ChannelCount uint8
	/** @brief The width of the image. */
	Width uint32
	/** @brief The height of the image. */
	Height uint32
	/** @brief The pixel data of the image, tightly packed RGBA. */
	Pixels []uint8
	/** @brief Indicates if any pixel is not fully opaque. */
	HasTransparency bool
}

/** @brief Parameters used when loading an image. */
type ImageResourceParams struct {
	/** @brief Indicates if the image should be flipped on the y-axis when loaded. */
	FlipY bool
}

type Vec2 struct {
	X, Y float32
}

type Vec3 struct {
	X, Y, Z float32
}

type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief A single vertex of a mesh. */
type Vertex3D struct {
	Position Vec3
	Normal   Vec3
	Texcoord Vec2
}

/** @brief The extents of a mesh in local coordinates. */
type Extents3D struct {
	Min Vec3
	Max Vec3
}

/** @brief A named piece of geometry inside a mesh, paired with a material. */
type GeometryConfig struct {
	Name         string
	MaterialName string
	Vertices     []Vertex3D
	Indices      []uint32
	Extents      Extents3D
}

/** @brief A structure to hold mesh resource data. */
type MeshResourceData struct {
	/** @brief Material libraries referenced by the mesh. */
	MaterialLibraries []string
	Geometries        []*GeometryConfig
}

/**
 * @brief Material configuration typically loaded from
 * a file or created in code to load a material from.
 */
type MaterialConfig struct {
	/** @brief The name of the material. */
	Name string
	/** @brief The material type. */
	ShaderName string
	/** @brief Indicates if the material should be automatically released when no references to it remain. */
	AutoRelease bool
	/** @brief The diffuse colour of the material. */
	DiffuseColour Vec4
	/** @brief The shininess of the material. */
	Shininess float32
	/** @brief The diffuse map name. */
	DiffuseMapName string
	/** @brief The specular map name. */
	SpecularMapName string
	/** @brief The normal map name. */
	NormalMapName string
}

/** @brief SPIR-V bytecode of a single shader stage. */
type ShaderResourceData struct {
	Bytecode []uint32
}

/** @brief Decoded PCM audio. */
type SoundResourceData struct {
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	/** @brief Interleaved little-endian PCM samples. */
	Samples  []byte
	Duration time.Duration
}

type Keyframe struct {
	Time  float32   `toml:"time"`
	Value []float32 `toml:"value"`
}

type AnimationTrack struct {
	/** @brief Node or bone the track drives. */
	Target string `toml:"target"`
	/** @brief Animated property (translation, rotation, scale, weights). */
	Property  string     `toml:"property"`
	Keyframes []Keyframe `toml:"keyframes"`
}

/** @brief An animation clip. */
type AnimationResourceData struct {
	Name     string           `toml:"name"`
	Duration float32          `toml:"duration"`
	Looping  bool             `toml:"looping"`
	Tracks   []AnimationTrack `toml:"tracks"`
}

type FontGlyph struct {
	Codepoint int32
	X         uint16
	Y         uint16
	Width     uint16
	Height    uint16
	XOffset   int16
	YOffset   int16
	XAdvance  int16
	PageID    uint8
}

type FontKerning struct {
	Codepoint0 int32
	Codepoint1 int32
	Amount     int16
}

type FontData struct {
	Face       string
	Size       uint32
	LineHeight int32
	Baseline   int32
	AtlasSizeX int32
	AtlasSizeY int32
	Glyphs     []*FontGlyph
	Kernings   []*FontKerning
}

type BitmapFontPage struct {
	ID   int8
	File string
}

type BitmapFontResourceData struct {
	Data  *FontData
	Pages []*BitmapFontPage
}

type SystemFontFace struct {
	Name string
}

type SystemFontResourceData struct {
	Fonts      []*SystemFontFace
	FontBinary *sfnt.Collection
	BinarySize uint64
}
