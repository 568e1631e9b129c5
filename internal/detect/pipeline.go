package detect

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"

	"github.com/andresmejia3/facedetector/internal/types"
	"gocv.io/x/gocv"
)

// FailureKind classifies why a pipeline run produced no detections.
type FailureKind string

const (
	FailureNoClassifiers FailureKind = "no-classifiers"
	FailureUnreadable    FailureKind = "unreadable"
	FailureDecode        FailureKind = "decode"
	FailureCorrupt       FailureKind = "corrupt"
)

// Failure is the failure branch of a Result.
type Failure struct {
	Kind    FailureKind
	Message string
}

func (f *Failure) Error() string { return f.Message }

// Result is either a decoded image with its kept boxes, or a Failure.
type Result struct {
	Image   gocv.Mat
	Boxes   []types.Box
	Raw     int // detections before suppression
	Failure *Failure
}

// OK reports whether the run succeeded.
func (r *Result) OK() bool { return r.Failure == nil }

// Close releases the decoded image, if any.
func (r *Result) Close() {
	if r.Failure == nil {
		r.Image.Close()
	}
}

func failed(kind FailureKind, format string, args ...any) Result {
	return Result{Failure: &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}}
}

// Pipeline chains decoding, preprocessing, the ensemble and suppression.
type Pipeline struct {
	ensemble  *Ensemble
	threshold float64
}

// NewPipeline builds a pipeline over a startup registry.
func NewPipeline(reg *Registry, threshold float64) *Pipeline {
	if threshold <= 0 {
		threshold = DefaultOverlapThreshold
	}
	return &Pipeline{ensemble: NewEnsemble(reg), threshold: threshold}
}

// ProcessFile runs the pipeline on an image stored at path.
func (p *Pipeline) ProcessFile(path string) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return failed(FailureUnreadable, "file not found: %s", path)
		}
		return failed(FailureUnreadable, "unable to read %s: %v", path, err)
	}
	return p.Process(data)
}

// Process runs the pipeline on an encoded image. Failures never escape as
// errors; they come back as the Failure branch of the Result.
func (p *Pipeline) Process(data []byte) Result {
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil || img.Empty() {
		if err == nil {
			img.Close()
		}
		return failed(FailureDecode, "invalid image format or corrupt payload")
	}

	if err := p.ensemble.registry.Require(); err != nil {
		img.Close()
		return failed(FailureNoClassifiers, "%v", err)
	}

	variants, err := Preprocess(img)
	if err != nil {
		img.Close()
		return failed(FailureCorrupt, "%v", err)
	}
	defer CloseVariants(variants)

	raw, err := p.ensemble.Run(variants)
	if err != nil {
		img.Close()
		return failed(FailureNoClassifiers, "%v", err)
	}

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	boxes := make([]types.Box, 0, len(raw))
	for _, r := range raw {
		if b, ok := toBox(r, bounds); ok {
			boxes = append(boxes, b)
		}
	}

	return Result{
		Image: img,
		Boxes: Suppress(boxes, p.threshold),
		Raw:   len(raw),
	}
}

// toBox clamps r into bounds and drops it if nothing is left.
func toBox(r image.Rectangle, bounds image.Rectangle) (types.Box, bool) {
	r = r.Canon().Intersect(bounds)
	if r.Empty() {
		return types.Box{}, false
	}
	return types.Box{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}, true
}
