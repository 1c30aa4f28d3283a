package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Kendall's exact null distribution is used for untied samples up to this
// size; larger or tied samples use the normal approximation.
const kendallExactMaxN = 33

// Coefficient is a correlation statistic with its two-sided p-value.
type Coefficient struct {
	Value float64
	P     float64
}

// Pearson returns the product-moment correlation of x and y.
func Pearson(x, y []float64) Coefficient {
	r := stat.Correlation(x, y, nil)
	return Coefficient{Value: r, P: tTestP(r, len(x))}
}

// Spearman returns the rank correlation of x and y, ties taking the average
// of the ranks they span.
func Spearman(x, y []float64) Coefficient {
	r := stat.Correlation(rank(x), rank(y), nil)
	return Coefficient{Value: r, P: tTestP(r, len(x))}
}

// tTestP is the two-sided p-value of a correlation r over n pairs under the
// null of no association, via Student's t with n-2 degrees of freedom.
func tTestP(r float64, n int) float64 {
	if math.IsNaN(r) || n < 3 {
		return math.NaN()
	}
	if math.Abs(r) >= 1 {
		return 0
	}
	df := float64(n - 2)
	t := r * math.Sqrt(df/((1-r)*(1+r)))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.Survival(math.Abs(t))
}

// rank returns 1-based ranks, tied values sharing their mean rank.
func rank(x []float64) []float64 {
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return x[order[a]] < x[order[b]] })

	ranks := make([]float64, len(x))
	for i := 0; i < len(order); {
		j := i
		for j+1 < len(order) && x[order[j+1]] == x[order[i]] {
			j++
		}
		mean := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[order[k]] = mean
		}
		i = j + 1
	}
	return ranks
}

// Kendall returns Kendall's tau-b of x and y.
func Kendall(x, y []float64) Coefficient {
	n := len(x)
	if n < 2 {
		return Coefficient{Value: math.NaN(), P: math.NaN()}
	}

	var concordant, discordant int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := x[i] - x[j]
			dy := y[i] - y[j]
			switch {
			case dx == 0 || dy == 0:
			case (dx > 0) == (dy > 0):
				concordant++
			default:
				discordant++
			}
		}
	}

	xt := tieStats(x)
	yt := tieStats(y)
	total := float64(n*(n-1)) / 2

	denom := math.Sqrt(total-xt.pairs) * math.Sqrt(total-yt.pairs)
	if denom == 0 {
		return Coefficient{Value: math.NaN(), P: math.NaN()}
	}
	diff := float64(concordant - discordant)
	tau := diff / denom

	c := discordant
	if int(total)-discordant < c {
		c = int(total) - discordant
	}
	if xt.pairs == 0 && yt.pairs == 0 && (n <= kendallExactMaxN || c <= 1) {
		return Coefficient{Value: tau, P: kendallExactP(n, c)}
	}

	m := float64(n * (n - 1))
	variance := (m*float64(2*n+5)-xt.v1-yt.v1)/18 +
		2*xt.pairs*yt.pairs/m +
		xt.v0*yt.v0/(9*m*float64(n-2))
	z := diff / math.Sqrt(variance)
	return Coefficient{Value: tau, P: 2 * distuv.UnitNormal.Survival(math.Abs(z))}
}

type ties struct {
	pairs float64 // sum t(t-1)/2
	v0    float64 // sum t(t-1)(t-2)
	v1    float64 // sum t(t-1)(2t+5)
}

func tieStats(x []float64) ties {
	s := append([]float64(nil), x...)
	sort.Float64s(s)

	var out ties
	for i := 0; i < len(s); {
		j := i
		for j+1 < len(s) && s[j+1] == s[i] {
			j++
		}
		if t := float64(j - i + 1); t > 1 {
			out.pairs += t * (t - 1) / 2
			out.v0 += t * (t - 1) * (t - 2)
			out.v1 += t * (t - 1) * (2*t + 5)
		}
		i = j + 1
	}
	return out
}

// kendallExactP is the two-sided p-value for c discordant pairs (the smaller
// tail) among n untied observations, from the distribution of inversion
// counts over all permutations of n.
func kendallExactP(n, c int) float64 {
	dist := make([]float64, c+1)
	dist[0] = 1
	for m := 2; m <= n; m++ {
		next := make([]float64, c+1)
		window := 0.0
		for k := 0; k <= c; k++ {
			window += dist[k]
			if k-m >= 0 {
				window -= dist[k-m]
			}
			next[k] = window / float64(m)
		}
		dist = next
	}

	cdf := 0.0
	for _, p := range dist {
		cdf += p
	}
	return math.Min(1, 2*cdf)
}
