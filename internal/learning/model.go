package learning

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/awaistahir/heatpilot/internal/history"
)

// minTrainRows is the per-model minimum number of usable training rows.
const minTrainRows = 10

var errTooFewRows = errors.New("too few training rows")

// scaler standardizes features to zero mean and unit variance, mirroring
// the scaling the models were designed around. A zero-variance column is
// passed through unscaled.
type scaler struct {
	mean [NumFeatures]float64
	std  [NumFeatures]float64
}

func (s *scaler) fit(rows []FeatureVector) {
	n := float64(len(rows))
	for j := 0; j < NumFeatures; j++ {
		sum := 0.0
		for _, r := range rows {
			sum += r[j]
		}
		s.mean[j] = sum / n

		varSum := 0.0
		for _, r := range rows {
			d := r[j] - s.mean[j]
			varSum += d * d
		}
		s.std[j] = math.Sqrt(varSum / n)
		if s.std[j] == 0 {
			s.std[j] = 1
		}
	}
}

func (s *scaler) transform(v FeatureVector) FeatureVector {
	var out FeatureVector
	for j := 0; j < NumFeatures; j++ {
		out[j] = (v[j] - s.mean[j]) / s.std[j]
	}
	return out
}

// regressor is a ridge-damped linear least-squares estimator fit on scaled
// features. The small damping term keeps the normal equations solvable when
// features are collinear (building mass is constant per installation).
type regressor struct {
	coef      [NumFeatures]float64
	intercept float64
}

const ridgeLambda = 1e-3

func (r *regressor) fit(rows []FeatureVector, targets []float64) error {
	n := len(rows)
	if n < minTrainRows {
		return errTooFewRows
	}

	// Normal equations over [1, x1..xk] with ridge damping on the
	// non-intercept terms.
	dim := NumFeatures + 1
	a := make([][]float64, dim)
	b := make([]float64, dim)
	for i := range a {
		a[i] = make([]float64, dim)
	}

	row := make([]float64, dim)
	for i := 0; i < n; i++ {
		row[0] = 1
		for j := 0; j < NumFeatures; j++ {
			row[j+1] = rows[i][j]
		}
		for p := 0; p < dim; p++ {
			for q := 0; q < dim; q++ {
				a[p][q] += row[p] * row[q]
			}
			b[p] += row[p] * targets[i]
		}
	}
	for j := 1; j < dim; j++ {
		a[j][j] += ridgeLambda
	}

	w, err := solve(a, b)
	if err != nil {
		return err
	}

	r.intercept = w[0]
	for j := 0; j < NumFeatures; j++ {
		r.coef[j] = w[j+1]
	}
	return nil
}

func (r *regressor) predict(v FeatureVector) float64 {
	out := r.intercept
	for j := 0; j < NumFeatures; j++ {
		out += r.coef[j] * v[j]
	}
	return out
}

// solve runs Gaussian elimination with partial pivoting on a*x = b.
// a and b are modified in place.
func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("singular system at column %d", col)
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}

	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		sum := b[r]
		for c := r + 1; c < n; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x, nil
}

// model pairs a regression estimator with its feature scaler and accuracy
// record. A model is either untrained (no prediction) or fully trained;
// there is no partially-trained state.
type model struct {
	name     string
	scaler   scaler
	reg      regressor
	accuracy history.Accuracy
	trained  bool
}

// train refits the model wholesale on the given rows. On failure the model
// is left untouched, so the caller keeps the previous generation.
func (m *model) train(rows []FeatureVector, targets []float64) error {
	if len(rows) != len(targets) {
		return fmt.Errorf("training %s: %d rows but %d targets", m.name, len(rows), len(targets))
	}
	if len(rows) < minTrainRows {
		return fmt.Errorf("training %s: %w (%d)", m.name, errTooFewRows, len(rows))
	}

	next := model{name: m.name}
	next.scaler.fit(rows)

	scaled := make([]FeatureVector, len(rows))
	for i, r := range rows {
		scaled[i] = next.scaler.transform(r)
	}
	if err := next.reg.fit(scaled, targets); err != nil {
		return fmt.Errorf("training %s: %w", m.name, err)
	}

	mae := 0.0
	for i, r := range scaled {
		mae += math.Abs(next.reg.predict(r) - targets[i])
	}
	mae /= float64(len(rows))

	next.accuracy = history.Accuracy{
		MAE:       mae,
		Samples:   len(rows),
		TrainedAt: time.Now(),
	}
	next.trained = true

	*m = next
	return nil
}

// predict returns the model estimate for the vector, or false when the
// model is untrained. Untrained is a distinct outcome, never zero.
func (m *model) predict(v FeatureVector) (float64, bool) {
	if !m.trained {
		return 0, false
	}
	return m.reg.predict(m.scaler.transform(v)), true
}
