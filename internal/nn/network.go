package nn

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"perilune/internal/model"
)

// Network is a two-headed value network: a shared trunk feeding an
// action-value head and a next-state prediction head. The prediction head
// sees the trunk activation concatenated with a one-hot encoding of the
// action taken, so during training the recorded actions must be supplied
// rather than re-derived from the current Q estimates.
//
// Online and target networks are two instances of this one type; nothing
// here distinguishes them. Gradients only ever flow into a network whose
// ForwardPass.Backward is invoked, which is how the target stays untrained.
type Network struct {
	inputDim int
	hidden   int
	actions  int

	shared   *Dense
	valueH   *Dense
	valueOut *Dense
	predH    *Dense
	predOut  *Dense
}

func NewNetwork(inputDim, hidden, actions int, rng *rand.Rand) (*Network, error) {
	if inputDim <= 0 || hidden <= 0 || actions <= 0 {
		return nil, fmt.Errorf("invalid network dims: input=%d hidden=%d actions=%d", inputDim, hidden, actions)
	}
	return &Network{
		inputDim: inputDim,
		hidden:   hidden,
		actions:  actions,
		shared:   NewDense(inputDim, hidden, rng),
		valueH:   NewDense(hidden, hidden, rng),
		valueOut: NewDense(hidden, actions, rng),
		predH:    NewDense(hidden+actions, hidden, rng),
		predOut:  NewDense(hidden, inputDim, rng),
	}, nil
}

func (n *Network) InputDim() int    { return n.inputDim }
func (n *Network) ActionCount() int { return n.actions }

func (n *Network) Layers() []*Dense {
	return []*Dense{n.shared, n.valueH, n.valueOut, n.predH, n.predOut}
}

// ForwardPass holds the outputs of one forward computation together with
// the intermediate activations needed to backpropagate through it.
type ForwardPass struct {
	QValues  *mat.Dense // batch×actions
	NextPred *mat.Dense // batch×inputDim
	Actions  []int      // per-row action feeding the prediction head

	net    *Network
	x      *mat.Dense
	z1, a1 *mat.Dense
	z2, a2 *mat.Dense
	concat *mat.Dense
	z3, a3 *mat.Dense
}

// Forward runs the batch through both heads. When actualActions is nil the
// prediction head uses the arg-max of the freshly computed Q values;
// supplying actions overrides that selection, and an out-of-range index is
// a contract violation reported as an error.
func (n *Network) Forward(states *mat.Dense, actualActions []int) (*ForwardPass, error) {
	rows, cols := states.Dims()
	if cols != n.inputDim {
		return nil, fmt.Errorf("state width %d does not match network input %d", cols, n.inputDim)
	}
	if actualActions != nil && len(actualActions) != rows {
		return nil, fmt.Errorf("got %d actions for a batch of %d", len(actualActions), rows)
	}

	z1 := n.shared.Forward(states)
	a1 := leakyReLU(z1)

	z2 := n.valueH.Forward(a1)
	a2 := leakyReLU(z2)
	q := n.valueOut.Forward(a2)

	actions := make([]int, rows)
	if actualActions != nil {
		for i, a := range actualActions {
			if a < 0 || a >= n.actions {
				return nil, fmt.Errorf("action index %d out of range [0,%d)", a, n.actions)
			}
			actions[i] = a
		}
	} else {
		for i := 0; i < rows; i++ {
			actions[i] = argmaxRow(q, i)
		}
	}

	concat := mat.NewDense(rows, n.hidden+n.actions, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < n.hidden; j++ {
			concat.Set(i, j, a1.At(i, j))
		}
		concat.Set(i, n.hidden+actions[i], 1)
	}

	z3 := n.predH.Forward(concat)
	a3 := leakyReLU(z3)
	pred := n.predOut.Forward(a3)

	return &ForwardPass{
		QValues:  q,
		NextPred: pred,
		Actions:  actions,
		net:      n,
		x:        states,
		z1:       z1, a1: a1,
		z2: z2, a2: a2,
		concat: concat,
		z3:     z3, a3: a3,
	}, nil
}

// Backward accumulates parameter gradients for the network that produced
// this pass, given the loss gradients with respect to the two heads. The
// one-hot action slice of the concat input is discrete and receives no
// gradient.
func (p *ForwardPass) Backward(dQ, dPred *mat.Dense) {
	n := p.net

	dA3 := n.predOut.Backward(p.a3, dPred)
	dZ3 := leakyReLUGrad(p.z3, dA3)
	dConcat := n.predH.Backward(p.concat, dZ3)

	dA2 := n.valueOut.Backward(p.a2, dQ)
	dZ2 := leakyReLUGrad(p.z2, dA2)
	dA1 := n.valueH.Backward(p.a1, dZ2)

	rows, _ := dA1.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < n.hidden; j++ {
			dA1.Set(i, j, dA1.At(i, j)+dConcat.At(i, j))
		}
	}
	dZ1 := leakyReLUGrad(p.z1, dA1)
	n.shared.Backward(p.x, dZ1)
}

func (n *Network) ZeroGrad() {
	for _, l := range n.Layers() {
		l.ZeroGrad()
	}
}

// GradNorm is the L2 norm over all accumulated parameter gradients.
func (n *Network) GradNorm() float64 {
	sum := 0.0
	for _, l := range n.Layers() {
		sum += sumSquares(l.GradW) + sumSquares(l.GradB)
	}
	return math.Sqrt(sum)
}

// Clone builds a structurally identical network with copied parameters and
// zeroed gradients.
func (n *Network) Clone() *Network {
	c := &Network{
		inputDim: n.inputDim,
		hidden:   n.hidden,
		actions:  n.actions,
		shared:   cloneDense(n.shared),
		valueH:   cloneDense(n.valueH),
		valueOut: cloneDense(n.valueOut),
		predH:    cloneDense(n.predH),
		predOut:  cloneDense(n.predOut),
	}
	return c
}

// CopyFrom overwrites every parameter with the corresponding parameter of
// src (a hard copy).
func (n *Network) CopyFrom(src *Network) error {
	if err := n.checkCompatible(src); err != nil {
		return err
	}
	dst := n.Layers()
	for i, l := range src.Layers() {
		dst[i].W.Copy(l.W)
		dst[i].B.Copy(l.B)
	}
	return nil
}

// BlendFrom moves every parameter a fraction tau of the way toward the
// corresponding parameter of src (a Polyak soft copy).
func (n *Network) BlendFrom(src *Network, tau float64) error {
	if err := n.checkCompatible(src); err != nil {
		return err
	}
	dst := n.Layers()
	for i, l := range src.Layers() {
		blend(dst[i].W, l.W, tau)
		blend(dst[i].B, l.B, tau)
	}
	return nil
}

func (n *Network) checkCompatible(src *Network) error {
	if src == nil {
		return fmt.Errorf("source network is nil")
	}
	if src.inputDim != n.inputDim || src.hidden != n.hidden || src.actions != n.actions {
		return fmt.Errorf("network shape mismatch: (%d,%d,%d) vs (%d,%d,%d)",
			n.inputDim, n.hidden, n.actions, src.inputDim, src.hidden, src.actions)
	}
	return nil
}

// State exports all layer parameters for checkpointing.
func (n *Network) State() []model.LayerState {
	layers := n.Layers()
	out := make([]model.LayerState, len(layers))
	for i, l := range layers {
		rows, cols := l.W.Dims()
		weights := make([][]float64, rows)
		for r := 0; r < rows; r++ {
			row := make([]float64, cols)
			for c := 0; c < cols; c++ {
				row[c] = l.W.At(r, c)
			}
			weights[r] = row
		}
		_, bcols := l.B.Dims()
		biases := make([]float64, bcols)
		for c := 0; c < bcols; c++ {
			biases[c] = l.B.At(0, c)
		}
		out[i] = model.LayerState{Weights: weights, Biases: biases}
	}
	return out
}

// LoadState restores parameters exported by State. Shape mismatches are
// rejected so a checkpoint from a differently configured network cannot be
// silently loaded.
func (n *Network) LoadState(layers []model.LayerState) error {
	own := n.Layers()
	if len(layers) != len(own) {
		return fmt.Errorf("checkpoint has %d layers, network has %d", len(layers), len(own))
	}
	for i, st := range layers {
		rows, cols := own[i].W.Dims()
		if len(st.Weights) != rows {
			return fmt.Errorf("layer %d: checkpoint rows %d, want %d", i, len(st.Weights), rows)
		}
		for r, row := range st.Weights {
			if len(row) != cols {
				return fmt.Errorf("layer %d row %d: checkpoint cols %d, want %d", i, r, len(row), cols)
			}
		}
		if len(st.Biases) != cols {
			return fmt.Errorf("layer %d: checkpoint biases %d, want %d", i, len(st.Biases), cols)
		}
	}
	for i, st := range layers {
		for r, row := range st.Weights {
			for c, v := range row {
				own[i].W.Set(r, c, v)
			}
		}
		for c, v := range st.Biases {
			own[i].B.Set(0, c, v)
		}
	}
	return nil
}

func cloneDense(l *Dense) *Dense {
	in, out := l.W.Dims()
	c := &Dense{
		W:     mat.NewDense(in, out, nil),
		B:     mat.NewDense(1, out, nil),
		GradW: mat.NewDense(in, out, nil),
		GradB: mat.NewDense(1, out, nil),
	}
	c.W.Copy(l.W)
	c.B.Copy(l.B)
	return c
}

func blend(dst, src *mat.Dense, tau float64) {
	rows, cols := dst.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			d := dst.At(i, j)
			dst.Set(i, j, d+tau*(src.At(i, j)-d))
		}
	}
}

func argmaxRow(m *mat.Dense, row int) int {
	_, cols := m.Dims()
	best := 0
	bestV := m.At(row, 0)
	for j := 1; j < cols; j++ {
		if v := m.At(row, j); v > bestV {
			best = j
			bestV = v
		}
	}
	return best
}

func sumSquares(m *mat.Dense) float64 {
	rows, cols := m.Dims()
	sum := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)
			sum += v * v
		}
	}
	return sum
}
