// Package annotate turns a pipeline Result into the image sent back to the
// peer: the annotated original on success, a fixed error card otherwise.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/facedetector/internal/detect"
	"github.com/andresmejia3/facedetector/internal/storage"
	"github.com/andresmejia3/facedetector/internal/types"
	"gocv.io/x/gocv"
)

// Placeholder dimensions.
const (
	PlaceholderWidth  = 500
	PlaceholderHeight = 300
)

const (
	boxThickness   = 5
	textScale      = 0.7
	textThickness  = 2
	countLabelText = "Faces detectadas: %d"
	errorLabelText = "ERRO: %s"
)

var (
	boxColor    = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	errorColor  = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	countOrigin = image.Pt(10, 30)
	errorOrigin = image.Pt(20, 150)
)

var supportedExts = map[string]gocv.FileExt{
	".jpg":  gocv.JPEGFileExt,
	".jpeg": gocv.FileExt(".jpeg"),
	".png":  gocv.PNGFileExt,
	".bmp":  gocv.FileExt(".bmp"),
	".tif":  gocv.FileExt(".tif"),
	".tiff": gocv.FileExt(".tiff"),
	".webp": gocv.FileExt(".webp"),
}

// FileExt picks the encoder for a file name, falling back to JPEG.
func FileExt(name string) gocv.FileExt {
	if ext, ok := supportedExts[strings.ToLower(filepath.Ext(name))]; ok {
		return ext
	}
	return gocv.JPEGFileExt
}

// Render encodes res for a file called name.
func Render(res *detect.Result, name string) ([]byte, error) {
	if !res.OK() {
		return Placeholder(res.Failure.Error(), name)
	}
	return Annotate(res.Image, res.Boxes, name)
}

// Annotate draws boxes and the face count on a copy of img.
func Annotate(img gocv.Mat, boxes []types.Box, name string) ([]byte, error) {
	out := img.Clone()
	defer out.Close()

	for _, b := range boxes {
		gocv.Rectangle(&out, image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height), boxColor, boxThickness)
	}
	gocv.PutText(&out, fmt.Sprintf(countLabelText, len(boxes)), countOrigin,
		gocv.FontHersheySimplex, textScale, boxColor, textThickness)

	return encode(out, name)
}

// Placeholder renders the fixed-size error card carrying msg.
func Placeholder(msg string, name string) ([]byte, error) {
	card := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), PlaceholderHeight, PlaceholderWidth, gocv.MatTypeCV8UC3)
	defer card.Close()

	gocv.PutText(&card, fmt.Sprintf(errorLabelText, msg), errorOrigin,
		gocv.FontHersheySimplex, textScale, errorColor, textThickness)

	return encode(card, name)
}

func encode(img gocv.Mat, name string) ([]byte, error) {
	buf, err := gocv.IMEncode(FileExt(name), img)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	defer buf.Close()
	// GetBytes aliases native memory released by Close
	return append([]byte(nil), buf.GetBytes()...), nil
}

// Writer renders results over the stored payload they were read from.
type Writer struct {
	store *storage.Storage
}

// NewWriter returns a Writer backed by store.
func NewWriter(store *storage.Storage) *Writer {
	return &Writer{store: store}
}

// Write renders res and overwrites path with it, returning the rendered bytes.
// Rendering problems are themselves rendered as a placeholder; only storage
// failures are returned as errors.
func (w *Writer) Write(path string, res *detect.Result) ([]byte, error) {
	name := filepath.Base(path)
	data, err := Render(res, name)
	if err != nil {
		data, err = Placeholder(err.Error(), name)
		if err != nil {
			return nil, err
		}
	}
	if err := w.store.Overwrite(path, data); err != nil {
		return nil, err
	}
	return data, nil
}
