package detect

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"
)

// ErrNoClassifiers is returned when not a single cascade could be loaded.
var ErrNoClassifiers = errors.New("no usable cascade classifier loaded")

// cascadeScaleImage mirrors OpenCV's CASCADE_SCALE_IMAGE flag.
const cascadeScaleImage = 2

// Params are the fixed detectMultiScale arguments of a classifier.
type Params struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
}

// DefaultParams returns the detection parameters shared by every cascade.
func DefaultParams() Params {
	return Params{ScaleFactor: 1.1, MinNeighbors: 15, MinSize: image.Pt(150, 150)}
}

// Descriptor names one cascade model on disk.
type Descriptor struct {
	ID     string
	Path   string
	Params Params
}

// DefaultCascadeDir is where Linux OpenCV packages install the stock Haar cascades.
const DefaultCascadeDir = "/usr/share/opencv4/haarcascades"

// DefaultCascades maps logical classifier ids to the stock OpenCV model files.
var DefaultCascades = []struct{ ID, File string }{
	{"frontal-default", "haarcascade_frontalface_default.xml"},
	{"frontal-alt", "haarcascade_frontalface_alt.xml"},
	{"frontal-alt2", "haarcascade_frontalface_alt2.xml"},
	{"profile", "haarcascade_profileface.xml"},
}

// DefaultDescriptors resolves DefaultCascades inside dir.
func DefaultDescriptors(dir string, p Params) []Descriptor {
	out := make([]Descriptor, 0, len(DefaultCascades))
	for _, c := range DefaultCascades {
		out = append(out, Descriptor{ID: c.ID, Path: filepath.Join(dir, c.File), Params: p})
	}
	return out
}

// Classifier finds candidate boxes in a single-channel image.
type Classifier interface {
	Detect(gray gocv.Mat, p Params) []image.Rectangle
	Close() error
}

// Loader turns a descriptor into a ready classifier.
type Loader func(d Descriptor) (Classifier, error)

// cascade wraps an OpenCV cascade. detectMultiScale is not documented as
// thread-safe, so concurrent workers take turns on the same model.
type cascade struct {
	mu  sync.Mutex
	clf gocv.CascadeClassifier
}

// LoadCascade loads a Haar cascade XML file.
func LoadCascade(d Descriptor) (Classifier, error) {
	if _, err := os.Stat(d.Path); err != nil {
		return nil, fmt.Errorf("cascade %s: %w", d.ID, err)
	}
	clf := gocv.NewCascadeClassifier()
	if !clf.Load(d.Path) {
		clf.Close()
		return nil, fmt.Errorf("cascade %s: unable to parse %s", d.ID, d.Path)
	}
	return &cascade{clf: clf}, nil
}

func (c *cascade) Detect(gray gocv.Mat, p Params) []image.Rectangle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clf.DetectMultiScaleWithParams(gray, p.ScaleFactor, p.MinNeighbors, cascadeScaleImage, p.MinSize, image.Point{})
}

func (c *cascade) Close() error {
	return c.clf.Close()
}

// LoadResult is one line of the startup report.
type LoadResult struct {
	Descriptor Descriptor
	Err        error
}

// OK reports whether the classifier loaded.
func (r LoadResult) OK() bool { return r.Err == nil }

// Report lists the outcome of every load attempt, in descriptor order.
type Report []LoadResult

// Loaded counts successful loads.
func (r Report) Loaded() int {
	n := 0
	for _, res := range r {
		if res.OK() {
			n++
		}
	}
	return n
}

type entry struct {
	desc Descriptor
	clf  Classifier
}

// Registry is the read-only set of classifiers built once at startup.
type Registry struct {
	entries []entry
}

// LoadRegistry validates every descriptor with load. Failed descriptors are
// reported, not fatal; callers decide what an empty registry means.
func LoadRegistry(descs []Descriptor, load Loader) (*Registry, Report) {
	reg := &Registry{}
	report := make(Report, 0, len(descs))
	for _, d := range descs {
		clf, err := load(d)
		report = append(report, LoadResult{Descriptor: d, Err: err})
		if err != nil {
			continue
		}
		reg.entries = append(reg.entries, entry{desc: d, clf: clf})
	}
	return reg, report
}

// Len returns the number of usable classifiers.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// IDs lists the loaded classifier ids in load order.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.desc.ID
	}
	return ids
}

// Require fails with ErrNoClassifiers on an empty registry.
func (r *Registry) Require() error {
	if r.Len() == 0 {
		return ErrNoClassifiers
	}
	return nil
}

// Close releases every classifier.
func (r *Registry) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, e := range r.entries {
		if err := e.clf.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", e.desc.ID, err))
		}
	}
	r.entries = nil
	return errors.Join(errs...)
}
