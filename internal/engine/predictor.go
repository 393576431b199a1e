package engine

import (
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"github.com/awaistahir/heatpilot/internal/config"
	"github.com/awaistahir/heatpilot/internal/history"
	"github.com/awaistahir/heatpilot/internal/learning"
)

var (
	// ErrEmptyForecast is returned when a cycle runs without any forecast
	// entries. The caller degrades the cycle to "no action".
	ErrEmptyForecast = errors.New("forecast must contain at least one entry")
)

// adaptConfidenceGate is the confidence above which the slow outer loop is
// allowed to nudge the heuristic coefficients. Single noisy cycles never
// move global parameters.
const adaptConfidenceGate = 0.7

// Predictor runs the hybrid prediction: the deterministic heat-balance
// model corrected by the learned models, blended by confidence, followed by
// the control decision and the adaptive parameter update. One cycle
// executes synchronously end-to-end.
type Predictor struct {
	cfg     config.Config
	learner *learning.Engine

	mu              sync.Mutex
	thermalLag      float64
	solarGainFactor float64
	windFactor      float64
	lastDecision    *ControlDecision
}

// NewPredictor creates a predictor seeded with the configured parameters.
func NewPredictor(cfg config.Config, learner *learning.Engine) *Predictor {
	return &Predictor{
		cfg:             cfg,
		learner:         learner,
		thermalLag:      cfg.Advanced.ThermalLagHours,
		solarGainFactor: cfg.Advanced.SolarGainFactor,
		windFactor:      cfg.Advanced.WindFactor,
	}
}

// Predict assembles hourly predictions over the configured horizon, derives
// the control decision, and runs the adaptive parameter update. now is the
// cycle timestamp supplied by the control loop.
func (p *Predictor) Predict(now time.Time, status CurrentStatus, forecast []ForecastEntry) (ControlDecision, error) {
	if len(forecast) == 0 {
		return ControlDecision{}, ErrEmptyForecast
	}

	p.mu.Lock()
	phys := Physics{
		TargetTemperature: p.cfg.House.TargetTemperature,
		NightSetback:      p.cfg.House.NightSetback,
		SolarGainFactor:   p.solarGainFactor,
		WindFactor:        p.windFactor,
		BuildingMass:      p.cfg.House.BuildingMass,
		HeatingSystem:     p.cfg.House.HeatingSystem,
	}
	p.mu.Unlock()

	confidence := p.learner.Confidence()
	thermalLag := p.learner.ThermalLag(p.cfg.House.BuildingMass, p.cfg.House.HeatingSystem)
	massCode := learning.EncodeBuildingMass(string(p.cfg.House.BuildingMass))

	horizon := minInt(p.cfg.Advanced.PredictionHorizonHours, len(forecast))
	predictions := make([]HourlyPrediction, 0, horizon)

	for hour := 0; hour < horizon; hour++ {
		entry := forecast[hour]
		forecastTime := now.Add(time.Duration(hour) * time.Hour)

		comfortTarget := phys.ComfortTarget(forecastTime)
		impact := phys.WeatherImpact(forecastTime, entry)
		demand := phys.HeatDemand(comfortTarget, entry.Temperature, impact)

		demandFeatures := learning.Encode(learning.Conditions{
			OutsideTemp:  &entry.Temperature,
			Humidity:     &entry.Humidity,
			WindSpeed:    &entry.WindSpeed,
			CloudCover:   &entry.Clouds,
			TargetTemp:   &comfortTarget,
			HourOfDay:    forecastTime.Hour(),
			DayOfWeek:    int(now.Weekday()),
			Month:        int(now.Month()),
			BuildingMass: massCode,
		})
		if learned, ok := p.learner.PredictEnergyConsumption(demandFeatures); ok {
			demand = learning.Blend(demand, learned, confidence)
		}
		demand = math.Max(0, demand)

		roomTemp := status.roomTemp()
		copTarget := roomTemp + 1
		cop := ExpectedCOP(entry.Temperature, status.outletTemp())
		copFeatures := learning.Encode(learning.Conditions{
			OutsideTemp:  &entry.Temperature,
			Humidity:     &entry.Humidity,
			WindSpeed:    &entry.WindSpeed,
			CloudCover:   &entry.Clouds,
			RoomTemp:     &roomTemp,
			TargetTemp:   &copTarget,
			HourOfDay:    now.Hour(),
			DayOfWeek:    int(now.Weekday()),
			Month:        int(now.Month()),
			BuildingMass: massCode,
		})
		if learned, ok := p.learner.PredictCOP(copFeatures); ok {
			cop = learning.Blend(cop, learned, confidence)
		}
		cop = math.Max(1.0, math.Min(6.0, cop))

		predictions = append(predictions, HourlyPrediction{
			HourOffset:        hour,
			ForecastTime:      forecastTime,
			OutsideTemp:       entry.Temperature,
			ComfortTarget:     comfortTarget,
			WeatherImpact:     impact,
			HeatDemand:        demand,
			PredictedRoomTemp: PredictedRoomTemp(roomTemp, demand, thermalLag),
			PredictedEnergy:   demand * 1.2,
			PredictedCOP:      cop,
			ThermalLagUsed:    thermalLag,
		})
	}

	decision := Decide(status, predictions, thermalLag, confidence)
	decision.Timestamp = now

	p.updateAdaptiveParameters()

	p.mu.Lock()
	p.lastDecision = &decision
	p.mu.Unlock()

	return decision, nil
}

// updateAdaptiveParameters is the slow outer loop: when learning confidence
// clears the gate, the heuristic coefficients are recomputed from their
// configured bases and the recommended adjustment ratios.
func (p *Predictor) updateAdaptiveParameters() {
	rec := p.learner.Recommendations()
	if rec.Confidence <= adaptConfidenceGate {
		return
	}

	p.mu.Lock()
	p.thermalLag = p.cfg.Advanced.ThermalLagHours * rec.ThermalLagRatio
	p.solarGainFactor = p.cfg.Advanced.SolarGainFactor * rec.SolarGainRatio
	p.windFactor = p.cfg.Advanced.WindFactor * rec.WindFactorRatio
	p.mu.Unlock()

	log.Printf("engine: adapted parameters: thermal lag %.1fh, solar gain %.2f, wind factor %.2f",
		p.cfg.Advanced.ThermalLagHours*rec.ThermalLagRatio,
		p.cfg.Advanced.SolarGainFactor*rec.SolarGainRatio,
		p.cfg.Advanced.WindFactor*rec.WindFactorRatio)
}

// RecordOutcome stores the realized observation for this cycle, feeding the
// learning engine and (once the threshold is crossed) retraining.
func (p *Predictor) RecordOutcome(now time.Time, status CurrentStatus, forecast []ForecastEntry, decision ControlDecision) error {
	obs := history.Observation{
		Timestamp:         now,
		RoomTemp:          status.roomTemp(),
		TargetTemp:        status.targetTemp(),
		OutletTemp:        orDefault(status.Temperatures.Outlet, 0),
		InletTemp:         orDefault(status.Temperatures.Inlet, 0),
		OutsideTemp:       orDefault(status.Temperatures.Outside, 0),
		PumpFreq:          orDefault(status.System.PumpFrequency, 0),
		CompressorFreq:    orDefault(status.System.CompressorFreq, 0),
		EnergyConsumption: orDefault(status.System.EnergyConsumption, 0),
		EnergyProduction:  orDefault(status.System.EnergyProduction, 0),
		COP:               orDefault(status.System.COP, 0),
		Humidity:          50,
		HourOfDay:         now.Hour(),
		DayOfWeek:         int(now.Weekday()),
		Month:             int(now.Month()),
		BuildingMass:      learning.EncodeBuildingMass(string(p.cfg.House.BuildingMass)),
		HeatingSystem:     string(p.cfg.House.HeatingSystem),
	}

	if len(forecast) > 0 {
		obs.OutsideTemp = forecast[0].Temperature
		obs.Humidity = forecast[0].Humidity
		obs.WindSpeed = forecast[0].WindSpeed
		obs.CloudCover = forecast[0].Clouds
	}

	if t, ok := decision.Settings[SettingTargetTemperature]; ok {
		obs.PredictedTemp = t
	}
	if len(decision.Predictions) > 0 {
		obs.PredictedCOP = decision.Predictions[0].PredictedCOP
	}

	return p.learner.Record(obs)
}

// AlgorithmStatus reports the current algorithm parameters and learning
// state for the CLI and HTTP surfaces.
type AlgorithmStatus struct {
	ThermalLagHours        float64          `json:"thermal_lag_hours"`
	SolarGainFactor        float64          `json:"solar_gain_factor"`
	WindFactor             float64          `json:"wind_factor"`
	PredictionHorizonHours int              `json:"prediction_horizon_hours"`
	Confidence             float64          `json:"learning_confidence"`
	DataPoints             int              `json:"historical_data_points"`
	LastDecision           *ControlDecision `json:"last_decision,omitempty"`
}

// Status returns the current algorithm status.
func (p *Predictor) Status() AlgorithmStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return AlgorithmStatus{
		ThermalLagHours:        p.thermalLag,
		SolarGainFactor:        p.solarGainFactor,
		WindFactor:             p.windFactor,
		PredictionHorizonHours: p.cfg.Advanced.PredictionHorizonHours,
		Confidence:             p.learner.Confidence(),
		DataPoints:             p.learner.Samples(),
		LastDecision:           p.lastDecision,
	}
}
