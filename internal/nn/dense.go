package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dense is a fully connected layer. Weights are stored input-major so a
// batch forward is a single matrix product: z = x·W + b.
type Dense struct {
	W *mat.Dense // in×out
	B *mat.Dense // 1×out

	GradW *mat.Dense
	GradB *mat.Dense
}

func NewDense(in, out int, rng *rand.Rand) *Dense {
	limit := math.Sqrt(1.0 / float64(in))
	w := mat.NewDense(in, out, nil)
	for i := 0; i < in; i++ {
		for j := 0; j < out; j++ {
			w.Set(i, j, (rng.Float64()*2-1)*limit)
		}
	}
	b := mat.NewDense(1, out, nil)
	for j := 0; j < out; j++ {
		b.Set(0, j, (rng.Float64()*2-1)*limit)
	}
	return &Dense{
		W:     w,
		B:     b,
		GradW: mat.NewDense(in, out, nil),
		GradB: mat.NewDense(1, out, nil),
	}
}

func (l *Dense) Forward(x *mat.Dense) *mat.Dense {
	n, _ := x.Dims()
	_, out := l.W.Dims()
	z := mat.NewDense(n, out, nil)
	z.Mul(x, l.W)
	for i := 0; i < n; i++ {
		for j := 0; j < out; j++ {
			z.Set(i, j, z.At(i, j)+l.B.At(0, j))
		}
	}
	return z
}

// Backward accumulates parameter gradients for the batch that produced x
// and returns the gradient with respect to x.
func (l *Dense) Backward(x, dz *mat.Dense) *mat.Dense {
	in, out := l.W.Dims()
	n, _ := dz.Dims()

	var gw mat.Dense
	gw.Mul(x.T(), dz)
	l.GradW.Add(l.GradW, &gw)

	for j := 0; j < out; j++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += dz.At(i, j)
		}
		l.GradB.Set(0, j, l.GradB.At(0, j)+sum)
	}

	dx := mat.NewDense(n, in, nil)
	dx.Mul(dz, l.W.T())
	return dx
}

func (l *Dense) ZeroGrad() {
	l.GradW.Zero()
	l.GradB.Zero()
}

const leakySlope = 0.01

func leakyReLU(z *mat.Dense) *mat.Dense {
	n, m := z.Dims()
	a := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			v := z.At(i, j)
			if v < 0 {
				v *= leakySlope
			}
			a.Set(i, j, v)
		}
	}
	return a
}

// leakyReLUGrad chains an upstream gradient da through the activation that
// produced leakyReLU(z).
func leakyReLUGrad(z, da *mat.Dense) *mat.Dense {
	n, m := z.Dims()
	dz := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			g := da.At(i, j)
			if z.At(i, j) < 0 {
				g *= leakySlope
			}
			dz.Set(i, j, g)
		}
	}
	return dz
}
