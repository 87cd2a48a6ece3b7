package train

import (
	"fmt"
	"math"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/checkpoint"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/model"
)

// Optimizer updates parameters from accumulated gradients. Implementations
// expose their moment state for checkpointing.
type Optimizer interface {
	Kind() string
	Step(params []*model.Parameter, lr float64)
	State() checkpoint.OptimizerState
	LoadState(s checkpoint.OptimizerState) error
}

// NewOptimizer builds an optimizer by kind name. An unknown kind is a
// configuration error.
func NewOptimizer(kind string, beta1, beta2, eps float64) (Optimizer, error) {
	switch kind {
	case "adamw":
		return &adamW{moments: newMoments(), beta1: beta1, beta2: beta2, eps: eps, weightDecay: 0.01}, nil
	case "radam":
		return &rAdam{moments: newMoments(), beta1: beta1, beta2: beta2, eps: eps}, nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q", kind)
	}
}

type moments struct {
	step int
	m1   model.State
	m2   model.State
}

func newMoments() *moments {
	return &moments{m1: model.State{}, m2: model.State{}}
}

func (mo *moments) slot(name string, n int) ([]float64, []float64) {
	if _, ok := mo.m1[name]; !ok {
		mo.m1[name] = make([]float64, n)
		mo.m2[name] = make([]float64, n)
	}
	return mo.m1[name], mo.m2[name]
}

func (mo *moments) state(kind string) checkpoint.OptimizerState {
	return checkpoint.OptimizerState{
		Kind:    kind,
		Step:    mo.step,
		Moment1: mo.m1,
		Moment2: mo.m2,
	}
}

func (mo *moments) load(kind string, s checkpoint.OptimizerState) error {
	if s.Kind != "" && s.Kind != kind {
		return fmt.Errorf("optimizer state kind %q does not match %q", s.Kind, kind)
	}
	mo.step = s.Step
	mo.m1 = s.Moment1
	mo.m2 = s.Moment2
	if mo.m1 == nil {
		mo.m1 = model.State{}
	}
	if mo.m2 == nil {
		mo.m2 = model.State{}
	}
	return nil
}

// adamW is Adam with decoupled weight decay.
type adamW struct {
	*moments
	beta1, beta2, eps, weightDecay float64
}

func (o *adamW) Kind() string { return "adamw" }

func (o *adamW) Step(params []*model.Parameter, lr float64) {
	o.step++
	bc1 := 1 - math.Pow(o.beta1, float64(o.step))
	bc2 := 1 - math.Pow(o.beta2, float64(o.step))
	for _, p := range params {
		m1, m2 := o.slot(p.Name, len(p.Value))
		for i, g := range p.Grad {
			m1[i] = o.beta1*m1[i] + (1-o.beta1)*g
			m2[i] = o.beta2*m2[i] + (1-o.beta2)*g*g
			mHat := m1[i] / bc1
			vHat := m2[i] / bc2
			p.Value[i] -= lr * (mHat/(math.Sqrt(vHat)+o.eps) + o.weightDecay*p.Value[i])
		}
	}
}

func (o *adamW) State() checkpoint.OptimizerState { return o.state("adamw") }
func (o *adamW) LoadState(s checkpoint.OptimizerState) error {
	return o.load("adamw", s)
}

// rAdam rectifies Adam's adaptive rate in the early steps, falling back to
// unadapted momentum while the variance estimate is untrustworthy.
type rAdam struct {
	*moments
	beta1, beta2, eps float64
}

func (o *rAdam) Kind() string { return "radam" }

func (o *rAdam) Step(params []*model.Parameter, lr float64) {
	o.step++
	t := float64(o.step)
	bc1 := 1 - math.Pow(o.beta1, t)
	beta2t := math.Pow(o.beta2, t)
	rhoInf := 2/(1-o.beta2) - 1
	rho := rhoInf - 2*t*beta2t/(1-beta2t)

	var rect float64
	rectified := rho > 4
	if rectified {
		rect = math.Sqrt((rho - 4) * (rho - 2) * rhoInf / ((rhoInf - 4) * (rhoInf - 2) * rho))
	}

	for _, p := range params {
		m1, m2 := o.slot(p.Name, len(p.Value))
		for i, g := range p.Grad {
			m1[i] = o.beta1*m1[i] + (1-o.beta1)*g
			m2[i] = o.beta2*m2[i] + (1-o.beta2)*g*g
			mHat := m1[i] / bc1
			if rectified {
				vHat := math.Sqrt(m2[i] / (1 - beta2t))
				p.Value[i] -= lr * rect * mHat / (vHat + o.eps)
			} else {
				p.Value[i] -= lr * mHat
			}
		}
	}
}

func (o *rAdam) State() checkpoint.OptimizerState { return o.state("radam") }
func (o *rAdam) LoadState(s checkpoint.OptimizerState) error {
	return o.load("radam", s)
}
