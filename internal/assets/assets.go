// Package assets loads the optional images of a document: the organization logo
// and signature scans. Image failures are never fatal to a build; callers log
// them and draw without the image.
package assets

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"hrdocs/internal/logger"
	"hrdocs/internal/types"
)

// MaxDimension is the largest pixel side kept for an embedded image; bigger
// images are scaled down before they reach the PDF.
const MaxDimension = 1200

// Image is a decoded asset ready for the PDF backend, which accepts PNG and JPG.
type Image struct {
	Name   string
	Type   string // "PNG" or "JPG"
	Data   []byte
	Width  int
	Height int
}

// AspectRatio returns height divided by width.
func (img *Image) AspectRatio() float64 {
	if img == nil || img.Width == 0 {
		return 0
	}
	return float64(img.Height) / float64(img.Width)
}

// Decode identifies and, when needed, converts image bytes. PNG and JPEG within
// MaxDimension pass through untouched; anything else is re-encoded as PNG.
func Decode(name string, data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, types.NewDocErrorWithDetails(types.ErrAssetLoad, "image is empty", name, nil)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, types.NewDocErrorWithDetails(types.ErrAssetLoad, "unsupported image format", name, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, types.NewDocErrorWithDetails(types.ErrAssetLoad, "image has no pixels", name, nil)
	}

	if name == "" {
		name = contentName(data)
	}

	oversized := cfg.Width > MaxDimension || cfg.Height > MaxDimension
	switch {
	case format == "png" && !oversized:
		return &Image{Name: name, Type: "PNG", Data: data, Width: cfg.Width, Height: cfg.Height}, nil
	case format == "jpeg" && !oversized:
		return &Image{Name: name, Type: "JPG", Data: data, Width: cfg.Width, Height: cfg.Height}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, types.NewDocErrorWithDetails(types.ErrAssetLoad, "failed to decode image", name, err)
	}
	if oversized {
		src = downscale(src, MaxDimension)
		logger.Debug("image scaled down",
			logger.String("name", name),
			logger.Int("originalWidth", cfg.Width),
			logger.Int("originalHeight", cfg.Height),
			logger.Int("width", src.Bounds().Dx()),
			logger.Int("height", src.Bounds().Dy()))
	}

	var buf bytes.Buffer
	if format == "jpeg" {
		err = jpeg.Encode(&buf, src, &jpeg.Options{Quality: 90})
	} else {
		err = png.Encode(&buf, src)
	}
	if err != nil {
		return nil, types.NewDocErrorWithDetails(types.ErrAssetLoad, "failed to re-encode image", name, err)
	}

	kind := "PNG"
	if format == "jpeg" {
		kind = "JPG"
	}
	b := src.Bounds()
	return &Image{Name: name, Type: kind, Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

// downscale fits img into a limit x limit box keeping its aspect ratio.
func downscale(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w >= h {
		h = h * limit / w
		w = limit
	} else {
		w = w * limit / h
		h = limit
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

func contentName(data []byte) string {
	sum := sha256.Sum256(data)
	return "img-" + hex.EncodeToString(sum[:8])
}

// LoadFile reads and decodes the image at path.
func LoadFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewDocErrorWithDetails(types.ErrAssetLoad, "failed to read image", path, err)
	}
	return Decode(contentName(data), data)
}

// Pending is an image load running in the background.
type Pending struct {
	done chan struct{}
	img  *Image
	err  error
}

// LoadAsync starts loading path and returns immediately. An empty path resolves
// to no image and no error.
func LoadAsync(path string) *Pending {
	p := &Pending{done: make(chan struct{})}
	if path == "" {
		close(p.done)
		return p
	}
	go func() {
		defer close(p.done)
		p.img, p.err = LoadFile(path)
	}()
	return p
}

// Resolved wraps an already decoded image, or an error, as a Pending.
func Resolved(img *Image, err error) *Pending {
	p := &Pending{done: make(chan struct{}), img: img, err: err}
	close(p.done)
	return p
}

// Await blocks until the load finishes or ctx is done.
func (p *Pending) Await(ctx context.Context) (*Image, error) {
	select {
	case <-p.done:
		return p.img, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
