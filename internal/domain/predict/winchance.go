package predict

import (
	"math"

	"gonum.org/v1/gonum/optimize"
)

// ridge keeps the fit finite when every played match was won by the
// alliance with the larger margin.
const ridge = 1e-3

// Logistic maps a score margin to a win probability.
type Logistic struct {
	Slope     float64
	Intercept float64
	Fitted    bool
}

// FitLogistic fits P(win) = σ(slope·margin + intercept) by maximum
// likelihood. outcomes are 1 for a win, 0 for a loss and 0.5 for a tie.
// Fewer than minMatches samples leave the model unfitted.
func FitLogistic(margins, outcomes []float64, minMatches int) Logistic {
	if len(margins) != len(outcomes) || len(margins) < max(1, minMatches) {
		return Logistic{}
	}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			var nll float64
			for i, m := range margins {
				z := x[0]*m + x[1]
				nll += softplus(z) - outcomes[i]*z
			}
			return nll + ridge*x[0]*x[0]
		},
		Grad: func(grad, x []float64) {
			grad[0], grad[1] = 2*ridge*x[0], 0
			for i, m := range margins {
				r := sigmoid(x[0]*m+x[1]) - outcomes[i]
				grad[0] += r * m
				grad[1] += r
			}
		},
	}
	// A line search that stops early still leaves a usable location.
	res, _ := optimize.Minimize(problem, []float64{0, 0}, nil, &optimize.BFGS{})
	if res == nil || len(res.X) != 2 || !finite(res.X[0]) || !finite(res.X[1]) {
		return Logistic{}
	}
	return Logistic{Slope: res.X[0], Intercept: res.X[1], Fitted: true}
}

// Chance is the win probability at margin, or 0.5 when unfitted.
func (l Logistic) Chance(margin float64) float64 {
	if !l.Fitted {
		return 0.5
	}
	return sigmoid(l.Slope*margin + l.Intercept)
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func softplus(z float64) float64 {
	if z > 30 {
		return z
	}
	return math.Log1p(math.Exp(z))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
