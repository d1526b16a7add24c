package loaders

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/spaghettifunk/anima-loader/engine/resources"
)

const wavFormatPCM = 1

// SoundLoader reads uncompressed PCM RIFF/WAVE files.
type SoundLoader struct{}

type wavFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

func (sl *SoundLoader) Load(path string, assetType resources.ResourceType, params interface{}) (*resources.Resource, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := parseWAV(buf)
	if err != nil {
		return nil, fmt.Errorf("sound '%s': %w", path, err)
	}
	return &resources.Resource{
		Type:     assetType,
		FullPath: path,
		DataSize: uint64(len(data.Samples)),
		Data:     data,
	}, nil
}

func (sl *SoundLoader) Unload(res *resources.Resource) error {
	release(res)
	return nil
}

func parseWAV(buf []byte) (*resources.SoundResourceData, error) {
	if len(buf) < 12 || !bytes.Equal(buf[0:4], []byte("RIFF")) || !bytes.Equal(buf[8:12], []byte("WAVE")) {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrMalformed)
	}

	var (
		format  *wavFormat
		samples []byte
	)
	body := buf[12:]
	for len(body) >= 8 {
		id := string(body[0:4])
		size := int(binary.LittleEndian.Uint32(body[4:8]))
		body = body[8:]
		if size > len(body) {
			return nil, fmt.Errorf("%w: chunk '%s' truncated", ErrMalformed, id)
		}
		chunk := body[:size]

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: fmt chunk too short", ErrMalformed)
			}
			f := &wavFormat{}
			if err := binary.Read(bytes.NewReader(chunk[:16]), binary.LittleEndian, f); err != nil {
				return nil, err
			}
			format = f
		case "data":
			samples = chunk
		}

		// chunks are word aligned
		if size%2 == 1 && size < len(body) {
			size++
		}
		body = body[size:]
	}

	if format == nil {
		return nil, fmt.Errorf("%w: no fmt chunk", ErrMalformed)
	}
	if format.AudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: wave format %d", ErrUnsupportedFormat, format.AudioFormat)
	}
	if format.Channels == 0 || format.SampleRate == 0 || format.BitsPerSample == 0 {
		return nil, fmt.Errorf("%w: invalid fmt chunk", ErrMalformed)
	}
	if samples == nil {
		return nil, fmt.Errorf("%w: no data chunk", ErrMalformed)
	}

	frameSize := uint64(format.Channels) * uint64(format.BitsPerSample) / 8
	var duration time.Duration
	if frameSize > 0 {
		frames := uint64(len(samples)) / frameSize
		duration = time.Duration(frames) * time.Second / time.Duration(format.SampleRate)
	}

	return &resources.SoundResourceData{
		Channels:      format.Channels,
		SampleRate:    format.SampleRate,
		BitsPerSample: format.BitsPerSample,
		Samples:       samples,
		Duration:      duration,
	}, nil
}
