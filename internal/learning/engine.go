package learning

import (
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"

	"github.com/awaistahir/heatpilot/internal/config"
	"github.com/awaistahir/heatpilot/internal/history"
)

// MinSamples is the retrain threshold: below it no model is considered
// usable and confidence is zero.
const MinSamples = 100

// Regression target names. Each owns an independent estimator and scaler.
const (
	TargetTemperatureResponse = "temperature_response"
	TargetEnergyConsumption   = "energy_consumption"
	TargetCOP                 = "cop_prediction"
)

// minCorrelationSamples gates the correlation-based analyses.
const minCorrelationSamples = 50

// Engine owns the regression models, their training, and the confidence
// and adaptation analyses over the observation history. Models are replaced
// wholesale on retrain; a retrain in progress never blocks prediction,
// which keeps reading the previous generation.
type Engine struct {
	cfg   config.Config
	store *history.Store

	mu     sync.RWMutex
	models map[string]*model

	retraining atomic.Bool
}

// NewEngine creates the learning engine over an opened history store. All
// models start untrained; call Retrain (or let Record trigger it) once
// enough observations exist. Fitted coefficients are not persisted, but the
// accuracy records are: they seed confidence until the first retrain.
func NewEngine(cfg config.Config, store *history.Store) *Engine {
	e := &Engine{
		cfg:   cfg,
		store: store,
		models: map[string]*model{
			TargetTemperatureResponse: {name: TargetTemperatureResponse},
			TargetEnergyConsumption:   {name: TargetEnergyConsumption},
			TargetCOP:                 {name: TargetCOP},
		},
	}
	for name, acc := range store.Accuracies() {
		if m, ok := e.models[name]; ok {
			m.accuracy = acc
		}
	}
	return e
}

// Record appends one realized observation and, once the retrain threshold
// is crossed, schedules a background retrain. Retrains coalesce: a request
// arriving while one is running is dropped, the next append tries again.
func (e *Engine) Record(o history.Observation) error {
	if err := e.store.Append(o); err != nil {
		return err
	}
	if e.store.Len() >= MinSamples {
		e.retrainAsync()
	}
	return nil
}

func (e *Engine) retrainAsync() {
	if !e.retraining.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer e.retraining.Store(false)
		if err := e.Retrain(); err != nil {
			log.Printf("learning: retrain failed: %v", err)
		}
	}()
}

// Retrain refits all three models on the full retained window. Each model
// is trained into a fresh generation and swapped in atomically; a failed
// fit leaves that model's previous generation intact.
func (e *Engine) Retrain() error {
	obs := e.store.Observations()
	if len(obs) < MinSamples {
		return fmt.Errorf("retrain: %d observations, need %d", len(obs), MinSamples)
	}

	rows := make([]FeatureVector, len(obs))
	for i, o := range obs {
		rows[i] = EncodeObservation(o)
	}

	outlet := make([]float64, len(obs))
	energy := make([]float64, len(obs))
	for i, o := range obs {
		outlet[i] = o.OutletTemp
		energy[i] = o.EnergyConsumption
	}
	forwardFill(outlet)
	forwardFill(energy)

	e.trainTarget(TargetTemperatureResponse, rows, outlet)
	e.trainTarget(TargetEnergyConsumption, rows, energy)

	// COP regression excludes rows without a valid COP reading.
	var copRows []FeatureVector
	var copTargets []float64
	for i, o := range obs {
		if o.COP > 0 {
			copRows = append(copRows, rows[i])
			copTargets = append(copTargets, o.COP)
		}
	}
	if len(copRows) > minTrainRows {
		e.trainTarget(TargetCOP, copRows, copTargets)
	}

	return nil
}

func (e *Engine) trainTarget(name string, rows []FeatureVector, targets []float64) {
	e.mu.RLock()
	next := *e.models[name]
	e.mu.RUnlock()

	if err := next.train(rows, targets); err != nil {
		log.Printf("learning: %v", err)
		return
	}

	e.mu.Lock()
	e.models[name] = &next
	e.mu.Unlock()

	e.store.SetAccuracy(name, next.accuracy)
	log.Printf("learning: trained %s on %d samples, MAE %.3f", name, next.accuracy.Samples, next.accuracy.MAE)
}

// forwardFill replaces missing (zero) values with the most recent observed
// value. Leading missing values stay zero.
func forwardFill(vals []float64) {
	last := 0.0
	for i, v := range vals {
		if v == 0 {
			vals[i] = last
		} else {
			last = v
		}
	}
}

// PredictTemperatureResponse estimates the outlet temperature for the given
// conditions. The second return is false when the model is untrained.
func (e *Engine) PredictTemperatureResponse(v FeatureVector) (float64, bool) {
	return e.predict(TargetTemperatureResponse, v)
}

// PredictEnergyConsumption estimates energy consumption for the conditions.
func (e *Engine) PredictEnergyConsumption(v FeatureVector) (float64, bool) {
	return e.predict(TargetEnergyConsumption, v)
}

// PredictCOP estimates the coefficient of performance for the conditions.
func (e *Engine) PredictCOP(v FeatureVector) (float64, bool) {
	return e.predict(TargetCOP, v)
}

func (e *Engine) predict(name string, v FeatureVector) (float64, bool) {
	e.mu.RLock()
	m := e.models[name]
	e.mu.RUnlock()
	return m.predict(v)
}

// Confidence aggregates data volume and model accuracy into the blend
// weight. It is 0.0 unconditionally below the retrain threshold. Accuracy
// counts whether it came from a model trained in this process or from the
// store's persisted records, so confidence is stable across a restart.
func (e *Engine) Confidence() float64 {
	n := e.store.Len()
	if n < MinSamples {
		return 0.0
	}

	factors := []float64{math.Min(1.0, float64(n)/float64(MinSamples*3))}

	e.mu.RLock()
	for _, m := range e.models {
		if m.trained || m.accuracy.Samples > 0 {
			factors = append(factors, math.Max(0.0, 1.0-m.accuracy.MAE/10.0))
		}
	}
	e.mu.RUnlock()

	sum := 0.0
	for _, f := range factors {
		sum += f
	}
	return sum / float64(len(factors))
}

// Blend mixes a heuristic estimate with a learned one by confidence. At
// confidence 0 the result is exactly the heuristic value; at 1, exactly
// the learned value.
func Blend(heuristic, learned, confidence float64) float64 {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return heuristic*(1-confidence) + learned*confidence
}

// ThermalLag computes the effective thermal lag in hours for the building:
// configured base scaled by building mass, heating system, and (with enough
// history) a learned responsiveness factor. Unrecognized enum values fall
// back to the neutral factor. The result is clamped to [0.5, 12] hours.
func (e *Engine) ThermalLag(mass config.BuildingMass, system config.HeatingSystem) float64 {
	base := e.cfg.Advanced.ThermalLagHours

	massFactor := 1.0
	switch mass {
	case config.MassLow:
		massFactor = 0.7
	case config.MassMedium:
		massFactor = 1.0
	case config.MassHigh:
		massFactor = 1.5
	}

	systemFactor := 1.0
	switch system {
	case config.SystemRadiator:
		systemFactor = 0.5
	case config.SystemUnderfloor:
		systemFactor = 1.2
	case config.SystemMixed:
		systemFactor = 0.8
	}

	lag := base * massFactor * systemFactor
	if e.store.Len() >= minCorrelationSamples {
		lag *= e.learnedLagFactor()
	}

	return math.Max(0.5, math.Min(12.0, lag))
}

// learnedLagFactor discretizes the correlation between target-temperature
// changes and room-temperature changes into three response bands.
func (e *Engine) learnedLagFactor() float64 {
	obs := e.store.Observations()
	if len(obs) < 20 {
		return 1.0
	}

	targets := make([]float64, len(obs))
	rooms := make([]float64, len(obs))
	for i, o := range obs {
		targets[i] = o.TargetTemp
		rooms[i] = o.RoomTemp
	}

	corr := pearson(diffs(targets), diffs(rooms))
	switch {
	case corr > 0.7:
		return 0.8 // fast response
	case corr > 0.5:
		return 1.0
	default:
		return 1.3 // slow response
	}
}

// Adaptation carries the recommended multipliers for the heuristic
// coefficients, derived from correlation analysis over the history.
type Adaptation struct {
	ThermalLagRatio float64 `json:"thermal_lag_adjustment"`
	SolarGainRatio  float64 `json:"solar_gain_adjustment"`
	WindFactorRatio float64 `json:"wind_factor_adjustment"`
	Confidence      float64 `json:"confidence"`
	DataPoints      int     `json:"data_points"`
}

// Recommendations analyzes the history and returns adjustment ratios for
// the heuristic parameters. Ratios stay neutral until enough data exists.
func (e *Engine) Recommendations() Adaptation {
	rec := Adaptation{
		ThermalLagRatio: 1.0,
		SolarGainRatio:  1.0,
		WindFactorRatio: 1.0,
		Confidence:      e.Confidence(),
		DataPoints:      e.store.Len(),
	}

	obs := e.store.Observations()
	if len(obs) < minCorrelationSamples {
		return rec
	}

	rec.ThermalLagRatio = temperatureResponsiveness(obs)

	solar, wind := weatherImpactRatios(obs)
	rec.SolarGainRatio = solar
	rec.WindFactorRatio = wind

	return rec
}

// temperatureResponsiveness measures how strongly the room follows target
// changes: the mean room-change over significant target changes (>0.5°C).
func temperatureResponsiveness(obs []history.Observation) float64 {
	var targetChanges, roomChanges []float64
	for i := 1; i < len(obs); i++ {
		dt := math.Abs(obs[i].TargetTemp - obs[i-1].TargetTemp)
		if dt > 0.5 {
			targetChanges = append(targetChanges, dt)
			roomChanges = append(roomChanges, math.Abs(obs[i].RoomTemp-obs[i-1].RoomTemp))
		}
	}
	if len(targetChanges) < 5 {
		return 1.0
	}

	ratio := mean(roomChanges) / mean(targetChanges)
	switch {
	case ratio > 0.8:
		return 0.8 // very responsive, reduce thermal lag
	case ratio > 0.5:
		return 1.0
	default:
		return 1.3 // slow, increase thermal lag
	}
}

// weatherImpactRatios correlates cloud cover and wind speed against energy
// consumption; a strong correlation nudges the matching heuristic factor.
func weatherImpactRatios(obs []history.Observation) (solar, wind float64) {
	solar, wind = 1.0, 1.0
	if len(obs) < 30 {
		return solar, wind
	}

	clouds := make([]float64, len(obs))
	winds := make([]float64, len(obs))
	energy := make([]float64, len(obs))
	for i, o := range obs {
		clouds[i] = o.CloudCover
		winds[i] = o.WindSpeed
		energy[i] = o.EnergyConsumption
	}

	if c := pearson(clouds, energy); math.Abs(c) > 0.3 {
		solar = 1.0 + c*0.5
	}
	if c := pearson(winds, energy); math.Abs(c) > 0.3 {
		wind = 1.0 + c*0.3
	}
	return solar, wind
}

// ModelStatus reports one model's training state for the status surfaces.
type ModelStatus struct {
	Trained  bool             `json:"trained"`
	Accuracy history.Accuracy `json:"accuracy"`
}

// Models returns the training state of every regression target.
func (e *Engine) Models() map[string]ModelStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]ModelStatus, len(e.models))
	for name, m := range e.models {
		out[name] = ModelStatus{Trained: m.trained, Accuracy: m.accuracy}
	}
	return out
}

// Samples returns the current retained observation count.
func (e *Engine) Samples() int {
	return e.store.Len()
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// diffs returns successive differences of vals.
func diffs(vals []float64) []float64 {
	if len(vals) < 2 {
		return nil
	}
	out := make([]float64, len(vals)-1)
	for i := 1; i < len(vals); i++ {
		out[i-1] = vals[i] - vals[i-1]
	}
	return out
}

// pearson computes the correlation coefficient of two equal-length series.
// Degenerate series (constant or too short) yield 0.
func pearson(xs, ys []float64) float64 {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0
	}
	mx, my := mean(xs), mean(ys)

	var cov, vx, vy float64
	for i := range xs {
		dx := xs[i] - mx
		dy := ys[i] - my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}
