package learning

import (
	"math"
	"testing"
)

// linearRows generates feature rows with enough spread for a stable fit and
// targets that are an exact linear function of two features.
func linearRows(n int) ([]FeatureVector, []float64) {
	rows := make([]FeatureVector, n)
	targets := make([]float64, n)
	for i := 0; i < n; i++ {
		outside := float64(i%25) - 10
		wind := float64((i * 3) % 12)
		rows[i] = FeatureVector{
			outside,
			50 + float64(i%20),
			wind,
			float64((i * 11) % 100),
			20 + float64(i%5)*0.2,
			21,
			float64(i % 24),
			float64(i % 7),
			float64(1 + i%12),
			2,
		}
		targets[i] = 40 - 0.8*outside + 0.5*wind
	}
	return rows, targets
}

func TestModelTrainAndPredict(t *testing.T) {
	rows, targets := linearRows(100)

	m := model{name: "test"}
	if err := m.train(rows, targets); err != nil {
		t.Fatalf("train: %v", err)
	}
	if !m.trained {
		t.Fatal("model should be trained")
	}
	if m.accuracy.Samples != 100 {
		t.Errorf("accuracy samples %d, want 100", m.accuracy.Samples)
	}
	if m.accuracy.MAE > 0.1 {
		t.Errorf("exact linear target should fit tightly, MAE %.4f", m.accuracy.MAE)
	}

	// Predict on conditions not in the training set.
	v := FeatureVector{-8, 55, 7, 30, 20.4, 21, 3, 2, 1, 2}
	got, ok := m.predict(v)
	if !ok {
		t.Fatal("trained model refused to predict")
	}
	want := 40 - 0.8*(-8) + 0.5*7
	if math.Abs(got-want) > 0.5 {
		t.Errorf("predicted %.3f, want %.3f", got, want)
	}
}

func TestModelUntrainedPredict(t *testing.T) {
	m := model{name: "test"}
	if _, ok := m.predict(FeatureVector{}); ok {
		t.Error("untrained model must report no prediction")
	}
}

func TestModelTrainTooFewRows(t *testing.T) {
	rows, targets := linearRows(minTrainRows - 1)

	m := model{name: "test"}
	if err := m.train(rows, targets); err == nil {
		t.Error("training below the row minimum should fail")
	}
	if m.trained {
		t.Error("failed training must leave the model untrained")
	}
}

func TestModelTrainMismatchedLengths(t *testing.T) {
	rows, targets := linearRows(50)

	m := model{name: "test"}
	if err := m.train(rows, targets[:40]); err == nil {
		t.Error("mismatched rows and targets should fail")
	}
}

func TestModelFailedTrainKeepsPreviousGeneration(t *testing.T) {
	rows, targets := linearRows(100)

	m := model{name: "test"}
	if err := m.train(rows, targets); err != nil {
		t.Fatalf("train: %v", err)
	}
	before, _ := m.predict(rows[0])

	if err := m.train(rows[:5], targets[:5]); err == nil {
		t.Fatal("expected failure on too few rows")
	}

	after, ok := m.predict(rows[0])
	if !ok {
		t.Fatal("previous generation lost after failed retrain")
	}
	if before != after {
		t.Errorf("prediction changed after failed retrain: %.4f vs %.4f", before, after)
	}
}

func TestScalerZeroVarianceColumn(t *testing.T) {
	// Column 5 (target temp) is constant in these rows; scaling must not
	// divide by zero.
	rows, _ := linearRows(50)

	var s scaler
	s.fit(rows)

	if s.std[5] != 1 {
		t.Errorf("zero-variance std should be 1, got %.4f", s.std[5])
	}

	out := s.transform(rows[0])
	for j, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("column %d: scaled value is %v", j, v)
		}
	}
}

func TestSolveSingularSystem(t *testing.T) {
	a := [][]float64{
		{1, 2},
		{2, 4}, // linearly dependent
	}
	b := []float64{3, 6}

	if _, err := solve(a, b); err == nil {
		t.Error("singular system should be rejected")
	}
}

func TestSolveKnownSystem(t *testing.T) {
	// 2x + y = 5, x - y = 1  =>  x = 2, y = 1
	a := [][]float64{
		{2, 1},
		{1, -1},
	}
	b := []float64{5, 1}

	x, err := solve(a, b)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if math.Abs(x[0]-2) > 1e-9 || math.Abs(x[1]-1) > 1e-9 {
		t.Errorf("got (%.4f, %.4f), want (2, 1)", x[0], x[1])
	}
}
