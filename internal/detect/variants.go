package detect

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

// Variant labels, in the order Preprocess emits them.
const (
	LabelCLAHE     = "clahe"
	LabelEqualized = "equalized"
	LabelGray      = "gray"
)

const claheClipLimit = 2.0

var claheTileGrid = image.Pt(8, 8)

// Variant is one grayscale rendition of the input image.
type Variant struct {
	Label string
	Gray  gocv.Mat
}

// Preprocess derives the three detection variants of img: CLAHE, global
// histogram equalization and the plain intensity image. Every variant is
// computed from the same gray conversion; none depends on another.
// Callers own the returned Mats and must release them with CloseVariants.
func Preprocess(img gocv.Mat) ([]Variant, error) {
	if img.Empty() {
		return nil, errors.New("preprocess: empty image")
	}

	gray := gocv.NewMat()
	switch img.Channels() {
	case 1:
		img.CopyTo(&gray)
	case 4:
		gocv.CvtColor(img, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	}

	clahe := gocv.NewCLAHEWithParams(claheClipLimit, claheTileGrid)
	defer clahe.Close()
	enhanced := gocv.NewMat()
	clahe.Apply(gray, &enhanced)

	equalized := gocv.NewMat()
	gocv.EqualizeHist(gray, &equalized)

	return []Variant{
		{Label: LabelCLAHE, Gray: enhanced},
		{Label: LabelEqualized, Gray: equalized},
		{Label: LabelGray, Gray: gray},
	}, nil
}

// CloseVariants releases the Mats created by Preprocess.
func CloseVariants(vs []Variant) {
	for i := range vs {
		vs[i].Gray.Close()
	}
}
