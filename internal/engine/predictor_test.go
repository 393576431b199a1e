package engine

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/awaistahir/heatpilot/internal/config"
	"github.com/awaistahir/heatpilot/internal/history"
	"github.com/awaistahir/heatpilot/internal/learning"
)

func newTestPredictor(t *testing.T) (*Predictor, *history.Store) {
	t.Helper()

	store, err := history.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.Defaults()
	learner := learning.NewEngine(cfg, store)
	return NewPredictor(cfg, learner), store
}

func testForecast(hours int) []ForecastEntry {
	now := time.Now()
	out := make([]ForecastEntry, hours)
	for i := range out {
		out[i] = ForecastEntry{
			Timestamp:   now.Add(time.Duration(i) * time.Hour),
			Temperature: 5,
			Humidity:    70,
			WindSpeed:   3,
			Clouds:      60,
		}
	}
	return out
}

func TestPredictEmptyForecast(t *testing.T) {
	p, _ := newTestPredictor(t)

	_, err := p.Predict(time.Now(), statusWithRoom(20), nil)
	if !errors.Is(err, ErrEmptyForecast) {
		t.Errorf("expected ErrEmptyForecast, got %v", err)
	}
}

func TestPredictHorizonLength(t *testing.T) {
	p, _ := newTestPredictor(t)

	decision, err := p.Predict(time.Now(), statusWithRoom(21), testForecast(24))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(decision.Predictions) != 24 {
		t.Errorf("expected 24 hourly predictions, got %d", len(decision.Predictions))
	}

	// A shorter forecast bounds the horizon.
	decision, err = p.Predict(time.Now(), statusWithRoom(21), testForecast(6))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(decision.Predictions) != 6 {
		t.Errorf("expected horizon capped at 6, got %d", len(decision.Predictions))
	}
}

func TestPredictUntrainedIsPureHeuristic(t *testing.T) {
	// With no history the learned models are untrained, confidence is 0,
	// and every prediction equals the deterministic model output.
	p, _ := newTestPredictor(t)
	cfg := config.Defaults()

	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	forecast := testForecast(12)

	decision, err := p.Predict(now, statusWithRoom(21), forecast)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if decision.Confidence != 0 {
		t.Errorf("untrained confidence should be 0, got %.2f", decision.Confidence)
	}

	phys := Physics{
		TargetTemperature: cfg.House.TargetTemperature,
		NightSetback:      cfg.House.NightSetback,
		SolarGainFactor:   cfg.Advanced.SolarGainFactor,
		WindFactor:        cfg.Advanced.WindFactor,
		BuildingMass:      cfg.House.BuildingMass,
		HeatingSystem:     cfg.House.HeatingSystem,
	}

	for i, pred := range decision.Predictions {
		at := now.Add(time.Duration(i) * time.Hour)
		target := phys.ComfortTarget(at)
		impact := phys.WeatherImpact(at, forecast[i])
		wantDemand := phys.HeatDemand(target, forecast[i].Temperature, impact)

		if !almostEqual(pred.HeatDemand, wantDemand) {
			t.Errorf("hour %d: demand %.4f, want heuristic %.4f", i, pred.HeatDemand, wantDemand)
		}
		if !almostEqual(pred.PredictedEnergy, wantDemand*1.2) {
			t.Errorf("hour %d: energy %.4f, want %.4f", i, pred.PredictedEnergy, wantDemand*1.2)
		}
		if pred.PredictedCOP < 1.0 || pred.PredictedCOP > 6.0 {
			t.Errorf("hour %d: COP %.2f outside [1, 6]", i, pred.PredictedCOP)
		}
	}
}

func TestPredictStoresLastDecision(t *testing.T) {
	p, _ := newTestPredictor(t)

	if p.Status().LastDecision != nil {
		t.Fatal("fresh predictor should have no last decision")
	}

	decision, err := p.Predict(time.Now(), statusWithRoom(18), testForecast(24))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}

	status := p.Status()
	if status.LastDecision == nil {
		t.Fatal("last decision not recorded")
	}
	if status.LastDecision.ActionNeeded != decision.ActionNeeded {
		t.Error("stored decision differs from returned decision")
	}
}

func TestStatusSeededFromConfig(t *testing.T) {
	p, _ := newTestPredictor(t)
	cfg := config.Defaults()

	status := p.Status()
	if status.ThermalLagHours != cfg.Advanced.ThermalLagHours {
		t.Errorf("thermal lag %.1f, want %.1f", status.ThermalLagHours, cfg.Advanced.ThermalLagHours)
	}
	if status.SolarGainFactor != cfg.Advanced.SolarGainFactor {
		t.Errorf("solar gain %.2f, want %.2f", status.SolarGainFactor, cfg.Advanced.SolarGainFactor)
	}
	if status.PredictionHorizonHours != cfg.Advanced.PredictionHorizonHours {
		t.Errorf("horizon %d, want %d", status.PredictionHorizonHours, cfg.Advanced.PredictionHorizonHours)
	}
}

func TestRecordOutcome(t *testing.T) {
	p, store := newTestPredictor(t)

	now := time.Now()
	forecast := testForecast(24)
	status := CurrentStatus{
		Timestamp: now,
		Connected: true,
		Temperatures: Temperatures{
			Room:    floatPtr(20.5),
			Target:  floatPtr(21),
			Outlet:  floatPtr(35),
			Outside: floatPtr(4),
		},
		System: SystemStatus{
			EnergyConsumption: floatPtr(1.2),
			EnergyProduction:  floatPtr(4.8),
			COP:               floatPtr(4.0),
		},
	}

	decision, err := p.Predict(now, status, forecast)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if err := p.RecordOutcome(now, status, forecast, decision); err != nil {
		t.Fatalf("record outcome: %v", err)
	}

	if store.Len() != 1 {
		t.Fatalf("expected 1 observation, got %d", store.Len())
	}

	obs := store.Observations()[0]
	if obs.RoomTemp != 20.5 {
		t.Errorf("room temp %.1f, want 20.5", obs.RoomTemp)
	}
	if obs.OutsideTemp != forecast[0].Temperature {
		t.Errorf("outside temp should come from the forecast, got %.1f", obs.OutsideTemp)
	}
	if obs.Humidity != forecast[0].Humidity {
		t.Errorf("humidity %.1f, want %.1f", obs.Humidity, forecast[0].Humidity)
	}
	if obs.COP != 4.0 {
		t.Errorf("COP %.1f, want 4.0", obs.COP)
	}
	if obs.PredictedCOP != decision.Predictions[0].PredictedCOP {
		t.Errorf("predicted COP %.2f, want %.2f", obs.PredictedCOP, decision.Predictions[0].PredictedCOP)
	}
}
