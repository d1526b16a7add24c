package loaders

import "errors"

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrMalformed         = errors.New("malformed resource file")
)
