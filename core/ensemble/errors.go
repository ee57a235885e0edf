package ensemble

import (
	"errors"
	"fmt"
)

// ErrModelNotLoaded means no trained ensemble is available. Prediction
// requests fail with this until a model is loaded or trained; it never
// degrades into a zero-value prediction.
var ErrModelNotLoaded = errors.New("no trained model loaded")

// ShapeError reports a feature vector whose length does not match the
// schema the model was fitted on. It indicates training/inference skew and
// is surfaced, not retried.
type ShapeError struct {
	Got  int
	Want int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("feature vector length %d does not match model schema length %d", e.Got, e.Want)
}
