package docgen

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"
)

// imageWidthMM is the printed width of an image block; height follows the
// aspect ratio.
const imageWidthMM = 100.0

// loadImage resolves an image block source: a "data:" URI carrying base64,
// or a path on disk, which is kept in Text. ok is false when the source is
// missing or is not a PNG, JPEG or GIF, in which case the block is dropped.
func loadImage(src string) (b Block, ok bool) {
	src = strings.TrimSpace(src)
	var data []byte
	name := src
	if strings.HasPrefix(src, "data:") {
		name = ""
		comma := strings.IndexByte(src, ',')
		if comma < 0 {
			return Block{}, false
		}
		decoded, err := base64.StdEncoding.DecodeString(src[comma+1:])
		if err != nil {
			return Block{}, false
		}
		data = decoded
	} else {
		raw, err := os.ReadFile(src)
		if err != nil {
			return Block{}, false
		}
		data = raw
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		return Block{}, false
	}
	return Block{
		Kind:   Image,
		Text:   name,
		Data:   data,
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, true
}

// extension maps a decoded image format to the file suffix excelize expects.
func (b Block) extension() string {
	if b.Format == "jpeg" {
		return ".jpg"
	}
	return "." + b.Format
}
