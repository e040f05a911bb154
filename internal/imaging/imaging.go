// Package imaging normalizes uploaded images before they are sent to a
// vision model endpoint: flatten to RGB on white, bound the dimensions,
// re-encode as JPEG, and return base64 suitable for a request payload.
package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	// Decoders for the supported input formats. JPEG is imported directly
	// for encoding.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/user/parley/internal/types"
)

const (
	// MaxDimension bounds both output dimensions. Images are downscaled
	// proportionally; never upscaled.
	MaxDimension = 1024

	// JPEGQuality is the re-encode quality.
	JPEGQuality = 85
)

// MimeType is the content type of every normalized image.
const MimeType = "image/jpeg"

var supportedExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".bmp":  true,
	".gif":  true,
}

// SupportedExt reports whether the file extension is an accepted input format.
func SupportedExt(filename string) bool {
	return supportedExts[strings.ToLower(filepath.Ext(filename))]
}

// NormalizeFile validates and normalizes the image at path. A nonexistent
// path fails with a not-found error before any decode is attempted; an
// unrecognized extension or undecodable content fails with an
// unsupported-format error.
func NormalizeFile(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", types.NewError(types.KindNotFound, "image not found: "+path)
		}
		return "", types.WrapError(types.KindStorage, "stat image", err)
	}

	if !SupportedExt(path) {
		return "", types.NewError(types.KindUnsupportedFormat, "unsupported image format: "+filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return "", types.WrapError(types.KindStorage, "open image", err)
	}
	defer f.Close()

	return Normalize(f)
}

// Normalize decodes an image, flattens any alpha channel onto a white
// background, downscales so neither dimension exceeds MaxDimension, and
// returns the result as base64-encoded JPEG.
func Normalize(r io.Reader) (string, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return "", types.WrapError(types.KindUnsupportedFormat, "decode image", err)
	}

	out := flattenAndScale(src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return "", types.WrapError(types.KindUnsupportedFormat, "encode jpeg", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// flattenAndScale draws the source over a white RGB canvas at the bounded
// target size. Catmull-Rom keeps downscaled images sharp; a 1:1 copy is used
// when the image already fits.
func flattenAndScale(src image.Image) *image.RGBA {
	bounds := src.Bounds()
	w, h := targetSize(bounds.Dx(), bounds.Dy())

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	if w == bounds.Dx() && h == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	}
	return dst
}

// targetSize returns dimensions scaled proportionally so that neither exceeds
// MaxDimension. Images already within the bound keep their size.
func targetSize(w, h int) (int, int) {
	if w <= MaxDimension && h <= MaxDimension {
		return w, h
	}
	if w >= h {
		scaled := h * MaxDimension / w
		if scaled < 1 {
			scaled = 1
		}
		return MaxDimension, scaled
	}
	scaled := w * MaxDimension / h
	if scaled < 1 {
		scaled = 1
	}
	return scaled, MaxDimension
}
