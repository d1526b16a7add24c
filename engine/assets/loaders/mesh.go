package loaders

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"github.com/spaghettifunk/anima-loader/engine/resources"
)

// MeshLoader imports Wavefront OBJ files. Polygons are triangulated as fans.
type MeshLoader struct{}

type objIndex struct {
	v, vt, vn int
}

type objState struct {
	positions []resources.Vec3
	texcoords []resources.Vec2
	normals   []resources.Vec3

	out     *resources.MeshResourceData
	current *resources.GeometryConfig
	lookup  map[objIndex]uint32
}

func (ml *MeshLoader) Load(path string, assetType resources.ResourceType, params interface{}) (*resources.Resource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	st := &objState{out: &resources.MeshResourceData{}}
	st.begin(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), "")

	scanner := bufio.NewScanner(file)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if err := st.parseLine(fields); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNumber, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	st.finish()

	if len(st.out.Geometries) == 0 {
		return nil, fmt.Errorf("%w: %s contains no faces", ErrMalformed, path)
	}

	size := uint64(0)
	for _, g := range st.out.Geometries {
		size += uint64(len(g.Vertices))*uint64(unsafe.Sizeof(resources.Vertex3D{})) + uint64(len(g.Indices))*4
	}
	return &resources.Resource{
		Type:     assetType,
		FullPath: path,
		DataSize: size,
		Data:     st.out,
	}, nil
}

func (ml *MeshLoader) Unload(res *resources.Resource) error {
	release(res)
	return nil
}

func (st *objState) parseLine(fields []string) error {
	switch fields[0] {
	case "v":
		v, err := parseFloats(fields[1:], 3)
		if err != nil {
			return err
		}
		st.positions = append(st.positions, resources.Vec3{X: v[0], Y: v[1], Z: v[2]})
	case "vt":
		v, err := parseFloats(fields[1:], 2)
		if err != nil {
			return err
		}
		st.texcoords = append(st.texcoords, resources.Vec2{X: v[0], Y: v[1]})
	case "vn":
		v, err := parseFloats(fields[1:], 3)
		if err != nil {
			return err
		}
		st.normals = append(st.normals, resources.Vec3{X: v[0], Y: v[1], Z: v[2]})
	case "f":
		return st.face(fields[1:])
	case "o", "g":
		name := ""
		if len(fields) > 1 {
			name = strings.Join(fields[1:], " ")
		}
		st.begin(name, st.current.MaterialName)
	case "usemtl":
		if len(fields) < 2 {
			return fmt.Errorf("%w: usemtl without a name", ErrMalformed)
		}
		if len(st.current.Indices) == 0 {
			st.current.MaterialName = fields[1]
		} else {
			st.begin(st.current.Name, fields[1])
		}
	case "mtllib":
		st.out.MaterialLibraries = append(st.out.MaterialLibraries, fields[1:]...)
	default:
		// s, l and other statements carry nothing we keep
	}
	return nil
}

func (st *objState) begin(name, material string) {
	st.finish()
	st.current = &resources.GeometryConfig{
		Name:         name,
		MaterialName: material,
		Extents: resources.Extents3D{
			Min: resources.Vec3{X: math.MaxFloat32, Y: math.MaxFloat32, Z: math.MaxFloat32},
			Max: resources.Vec3{X: -math.MaxFloat32, Y: -math.MaxFloat32, Z: -math.MaxFloat32},
		},
	}
	st.lookup = make(map[objIndex]uint32)
}

// finish keeps the current geometry only if it received faces.
func (st *objState) finish() {
	if st.current != nil && len(st.current.Indices) > 0 {
		st.out.Geometries = append(st.out.Geometries, st.current)
	}
	st.current = nil
}

func (st *objState) face(corners []string) error {
	if len(corners) < 3 {
		return fmt.Errorf("%w: face needs at least 3 vertices, got %d", ErrMalformed, len(corners))
	}
	indices := make([]uint32, len(corners))
	for i, c := range corners {
		idx, err := st.resolve(c)
		if err != nil {
			return err
		}
		indices[i] = st.vertex(idx)
	}
	for i := 1; i+1 < len(indices); i++ {
		st.current.Indices = append(st.current.Indices, indices[0], indices[i], indices[i+1])
	}
	return nil
}

// resolve parses "v", "v/vt", "v//vn" or "v/vt/vn" into zero-based indices,
// -1 for missing parts.
func (st *objState) resolve(corner string) (objIndex, error) {
	parts := strings.Split(corner, "/")
	if len(parts) > 3 {
		return objIndex{}, fmt.Errorf("%w: bad face corner '%s'", ErrMalformed, corner)
	}
	idx := objIndex{v: -1, vt: -1, vn: -1}
	var err error
	if idx.v, err = objRef(parts[0], len(st.positions)); err != nil {
		return idx, err
	}
	if idx.v < 0 {
		return idx, fmt.Errorf("%w: face corner '%s' has no position", ErrMalformed, corner)
	}
	if len(parts) > 1 && parts[1] != "" {
		if idx.vt, err = objRef(parts[1], len(st.texcoords)); err != nil {
			return idx, err
		}
	}
	if len(parts) > 2 && parts[2] != "" {
		if idx.vn, err = objRef(parts[2], len(st.normals)); err != nil {
			return idx, err
		}
	}
	return idx, nil
}

func objRef(s string, count int) (int, error) {
	if s == "" {
		return -1, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1, fmt.Errorf("%w: bad index '%s'", ErrMalformed, s)
	}
	if n < 0 {
		n = count + n
	} else {
		n--
	}
	if n < 0 || n >= count {
		return -1, fmt.Errorf("%w: index %s out of range (%d defined)", ErrMalformed, s, count)
	}
	return n, nil
}

func (st *objState) vertex(idx objIndex) uint32 {
	if i, ok := st.lookup[idx]; ok {
		return i
	}
	v := resources.Vertex3D{Position: st.positions[idx.v]}
	if idx.vt >= 0 {
		v.Texcoord = st.texcoords[idx.vt]
	}
	if idx.vn >= 0 {
		v.Normal = st.normals[idx.vn]
	}
	g := st.current
	g.Vertices = append(g.Vertices, v)
	grow(&g.Extents, v.Position)

	i := uint32(len(g.Vertices) - 1)
	st.lookup[idx] = i
	return i
}

func grow(e *resources.Extents3D, p resources.Vec3) {
	e.Min.X = min(e.Min.X, p.X)
	e.Min.Y = min(e.Min.Y, p.Y)
	e.Min.Z = min(e.Min.Z, p.Z)
	e.Max.X = max(e.Max.X, p.X)
	e.Max.Y = max(e.Max.Y, p.Y)
	e.Max.Z = max(e.Max.Z, p.Z)
}

func parseFloats(fields []string, n int) ([]float32, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrMalformed, n, len(fields))
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number '%s'", ErrMalformed, fields[i])
		}
		out[i] = float32(f)
	}
	return out, nil
}
