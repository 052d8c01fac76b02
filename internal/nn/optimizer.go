package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SGD is momentum stochastic gradient descent over a network's parameters,
// with element-wise gradient clipping applied before each step to bound
// update variance from outlier batches. A clip of 0 disables clipping.
type SGD struct {
	lr       float64
	momentum float64
	clip     float64

	velW []*mat.Dense
	velB []*mat.Dense
}

func NewSGD(net *Network, lr, momentum, clip float64) (*SGD, error) {
	if lr <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %v", lr)
	}
	if momentum < 0 || momentum >= 1 {
		return nil, fmt.Errorf("momentum must be in [0,1), got %v", momentum)
	}
	if clip < 0 {
		return nil, fmt.Errorf("gradient clip must be non-negative, got %v", clip)
	}

	layers := net.Layers()
	o := &SGD{
		lr:       lr,
		momentum: momentum,
		clip:     clip,
		velW:     make([]*mat.Dense, len(layers)),
		velB:     make([]*mat.Dense, len(layers)),
	}
	for i, l := range layers {
		in, out := l.W.Dims()
		o.velW[i] = mat.NewDense(in, out, nil)
		o.velB[i] = mat.NewDense(1, out, nil)
	}
	return o, nil
}

// Step clips the accumulated gradients element-wise and applies one
// momentum update to every parameter of net. The caller zeroes gradients
// before the next backward pass.
func (o *SGD) Step(net *Network) {
	for i, l := range net.Layers() {
		if o.clip > 0 {
			clipInPlace(l.GradW, o.clip)
			clipInPlace(l.GradB, o.clip)
		}
		o.apply(o.velW[i], l.GradW, l.W)
		o.apply(o.velB[i], l.GradB, l.B)
	}
}

func (o *SGD) apply(vel, grad, param *mat.Dense) {
	rows, cols := param.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := o.momentum*vel.At(r, c) - o.lr*grad.At(r, c)
			vel.Set(r, c, v)
			param.Set(r, c, param.At(r, c)+v)
		}
	}
}

func clipInPlace(m *mat.Dense, bound float64) {
	rows, cols := m.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := m.At(r, c)
			if v > bound {
				m.Set(r, c, bound)
			} else if v < -bound {
				m.Set(r, c, -bound)
			}
		}
	}
}
