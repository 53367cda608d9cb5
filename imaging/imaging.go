// Package imaging normalises uploaded images before they are stored.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxWidth is the widest raster image kept; wider ones are scaled down.
	MaxWidth    = 1600
	jpegQuality = 82
)

// ErrUnsupported is returned for uploads that are not a known image type.
var ErrUnsupported = eris.New("unsupported image type")

// Result is a processed upload ready to be written to disk.
type Result struct {
	Data     []byte
	MimeType string
	Ext      string
	// Width and Height are nil for vector images.
	Width  *int
	Height *int
}

// Process sniffs data and re-encodes raster images, scaling them to
// MaxWidth. PNG stays PNG so transparency survives; JPEG, GIF and WebP become
// JPEG. SVG is passed through untouched.
func Process(data []byte, declaredMIME string) (Result, error) {
	sniffed := http.DetectContentType(data)
	switch sniffed {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return processRaster(data, sniffed)
	}
	if isSVG(data, declaredMIME) {
		return Result{Data: data, MimeType: "image/svg+xml", Ext: ".svg"}, nil
	}
	return Result{}, eris.Wrapf(ErrUnsupported, "%s (declared %s)", sniffed, declaredMIME)
}

func processRaster(data []byte, mimeType string) (Result, error) {
	var (
		img image.Image
		err error
	)
	if mimeType == "image/gif" {
		img, err = gif.Decode(bytes.NewReader(data))
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return Result{}, eris.Wrapf(err, "decoding %s", mimeType)
	}

	img = fitWidth(img, MaxWidth)
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var buf bytes.Buffer
	res := Result{Width: &w, Height: &h}
	if mimeType == "image/png" {
		if err := png.Encode(&buf, img); err != nil {
			return Result{}, eris.Wrap(err, "encoding png")
		}
		res.MimeType, res.Ext = "image/png", ".png"
	} else {
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return Result{}, eris.Wrap(err, "encoding jpeg")
		}
		res.MimeType, res.Ext = "image/jpeg", ".jpg"
	}
	res.Data = buf.Bytes()
	return res, nil
}

// fitWidth scales img down to maxWidth keeping the aspect ratio.
func fitWidth(img image.Image, maxWidth int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxWidth {
		return img
	}
	newH := h * maxWidth / w
	if newH < 1 {
		newH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func isSVG(data []byte, declaredMIME string) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	hasTag := bytes.Contains(bytes.ToLower(head), []byte("<svg"))
	return hasTag && (strings.HasPrefix(declaredMIME, "image/svg") || bytes.HasPrefix(bytes.TrimSpace(head), []byte("<")))
}

// UniqueFilename returns base+ext, or base-2+ext, base-3+ext and so on,
// whichever exists reports as free first.
func UniqueFilename(base, ext string, exists func(name string) bool) string {
	if base == "" {
		base = "image"
	}
	candidate := base + ext
	for n := 2; exists(candidate); n++ {
		candidate = fmt.Sprintf("%s-%d%s", base, n, ext)
	}
	return candidate
}
