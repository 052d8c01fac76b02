package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const huberDelta = 1.0

// Huber computes the mean Huber loss between pred and target: quadratic
// within huberDelta of zero, linear beyond it, averaged over all elements.
// When grad is non-nil the gradient of the loss with respect to pred is
// written into it.
func Huber(pred, target, grad *mat.Dense) (float64, error) {
	rows, cols := pred.Dims()
	tr, tc := target.Dims()
	if tr != rows || tc != cols {
		return 0, fmt.Errorf("huber shape mismatch: pred %dx%d, target %dx%d", rows, cols, tr, tc)
	}
	if grad != nil {
		gr, gc := grad.Dims()
		if gr != rows || gc != cols {
			return 0, fmt.Errorf("huber grad shape mismatch: %dx%d, want %dx%d", gr, gc, rows, cols)
		}
	}

	n := float64(rows * cols)
	loss := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			e := pred.At(i, j) - target.At(i, j)
			var l, g float64
			if math.Abs(e) <= huberDelta {
				l = 0.5 * e * e
				g = e
			} else {
				l = huberDelta * (math.Abs(e) - 0.5*huberDelta)
				g = huberDelta * sign(e)
			}
			loss += l
			if grad != nil {
				grad.Set(i, j, g/n)
			}
		}
	}
	return loss / n, nil
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}
