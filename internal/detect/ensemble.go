package detect

import (
	"image"

	log "github.com/sirupsen/logrus"
)

// Ensemble runs every registered classifier against every variant.
type Ensemble struct {
	registry *Registry
}

// NewEnsemble binds an ensemble to a registry built at startup.
func NewEnsemble(r *Registry) *Ensemble {
	return &Ensemble{registry: r}
}

// Run returns the raw detections of the full classifier × variant cross
// product. Nothing is filtered here; redundancy is resolved by Suppress.
func (e *Ensemble) Run(variants []Variant) ([]image.Rectangle, error) {
	if err := e.registry.Require(); err != nil {
		return nil, err
	}
	var raw []image.Rectangle
	for _, ent := range e.registry.entries {
		for _, v := range variants {
			found := ent.clf.Detect(v.Gray, ent.desc.Params)
			log.WithFields(log.Fields{
				"classifier": ent.desc.ID,
				"variant":    v.Label,
				"boxes":      len(found),
			}).Debug("cascade pass")
			raw = append(raw, found...)
		}
	}
	return raw, nil
}
