package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/lox/bogwatch/internal/models"
)

// Regress fits index = Intercept + Slope*rain by ordinary least squares over
// the pairs at the given lag.
func Regress(series []models.YearValue, rain []models.RainfallYear, lag int) (models.Regression, []Pair, error) {
	pairs := Pairs(series, rain, lag)
	if len(pairs) < MinPairs {
		return models.Regression{}, pairs, fmt.Errorf("regress lag %d: %w", lag, ErrInsufficientPairs)
	}
	index, mm := split(pairs)
	return fit(mm, index), pairs, nil
}

func fit(x, y []float64) models.Regression {
	n := len(x)
	alpha, beta := stat.LinearRegression(x, y, nil, false)
	r := stat.Correlation(x, y, nil)

	reg := models.Regression{
		Slope:     beta,
		Intercept: alpha,
		R:         r,
		P:         tTestP(r, n),
		N:         n,
	}

	// Standard error of the slope.
	_, varX := stat.MeanVariance(x, nil)
	_, varY := stat.MeanVariance(y, nil)
	if varX > 0 {
		reg.StdErr = math.Sqrt(math.Max(0, 1-r*r) * varY / varX / float64(n-2))
	} else {
		reg.StdErr = math.NaN()
	}
	return reg
}
