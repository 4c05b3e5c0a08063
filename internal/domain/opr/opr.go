// Package opr solves calculated contributions: per-team estimates of an
// alliance quantity obtained by least squares over alliance totals.
package opr

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// rcond is the relative singular value cutoff of the rank-deficient path.
const rcond = 1e-10

// Equation states that the contributions of Teams sum to Value.
type Equation struct {
	Teams []string
	Value float64
}

// Result holds the contribution of every team that appears in an equation.
// Underdetermined lists teams whose contribution is not identified by the
// schedule; their values are the minimum-norm least-squares choice.
type Result struct {
	Contributions   map[string]float64
	Underdetermined []string
}

// Solve solves AᵀA x = Aᵀb where A is the team-appearance indicator matrix.
// Teams without an appearance never enter A. When AᵀA is singular the
// minimum-norm solution of A x = b is returned instead.
func Solve(eqs []Equation) (Result, error) {
	index := map[string]int{}
	var teams []string
	for _, e := range eqs {
		for _, t := range e.Teams {
			if _, ok := index[t]; !ok {
				index[t] = -1
				teams = append(teams, t)
			}
		}
	}
	if len(eqs) == 0 || len(teams) == 0 {
		return Result{}, ErrNoEquations
	}
	sort.Strings(teams)
	for i, t := range teams {
		index[t] = i
	}

	m, n := len(eqs), len(teams)
	a := mat.NewDense(m, n, nil)
	b := mat.NewVecDense(m, nil)
	for r, e := range eqs {
		for _, t := range e.Teams {
			a.Set(r, index[t], a.At(r, index[t])+1)
		}
		b.SetVec(r, e.Value)
	}

	x := mat.NewVecDense(n, nil)
	var under []string
	if !normal(a, b, x) {
		var err error
		if under, err = minimumNorm(a, b, x, teams); err != nil {
			return Result{}, err
		}
	}

	out := Result{Contributions: make(map[string]float64, n), Underdetermined: under}
	for i, t := range teams {
		out.Contributions[t] = x.AtVec(i)
	}
	return out, nil
}

func normal(a *mat.Dense, b, x *mat.VecDense) bool {
	_, n := a.Dims()
	ata := mat.NewSymDense(n, nil)
	ata.SymOuterK(1, a.T())
	var atb mat.VecDense
	atb.MulVec(a.T(), b)

	var chol mat.Cholesky
	if !chol.Factorize(ata) {
		return false
	}
	if err := chol.SolveVecTo(x, &atb); err != nil {
		return false
	}
	for i := 0; i < n; i++ {
		if v := x.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func minimumNorm(a *mat.Dense, b, x *mat.VecDense, teams []string) ([]string, error) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, fmt.Errorf("opr: singular value decomposition failed")
	}
	rank := svd.Rank(rcond)
	if rank < 1 {
		return nil, ErrNoEquations
	}
	svd.SolveVecTo(x, b, rank)

	// A team is identified when its unit vector lies in the row space,
	// that is when the first rank right singular vectors span it.
	var v mat.Dense
	svd.VTo(&v)
	var under []string
	for i, t := range teams {
		var norm float64
		for k := 0; k < rank; k++ {
			norm += v.At(i, k) * v.At(i, k)
		}
		if norm < 1-1e-9 {
			under = append(under, t)
		}
	}
	return under, nil
}
