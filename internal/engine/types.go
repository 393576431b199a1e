package engine

import "time"

// Temperatures is the temperature section of a status snapshot. Fields are
// nil when the device has not reported them yet.
type Temperatures struct {
	Outlet  *float64 `json:"outlet"`
	Inlet   *float64 `json:"inlet"`
	Outside *float64 `json:"outside"`
	Room    *float64 `json:"room"`
	Target  *float64 `json:"target"`
}

// SystemStatus is the heat pump system section of a status snapshot.
type SystemStatus struct {
	State             *float64 `json:"state"`
	Mode              *float64 `json:"mode"`
	PumpFrequency     *float64 `json:"pump_frequency"`
	CompressorFreq    *float64 `json:"compressor_frequency"`
	EnergyConsumption *float64 `json:"energy_consumption"`
	EnergyProduction  *float64 `json:"energy_production"`
	COP               *float64 `json:"cop"`
}

// CurrentStatus is one snapshot of the heat pump state, assembled by the
// device collaborator at the start of each control cycle.
type CurrentStatus struct {
	Timestamp    time.Time    `json:"timestamp"`
	Connected    bool         `json:"connected"`
	Temperatures Temperatures `json:"temperatures"`
	System       SystemStatus `json:"system"`
}

// ForecastEntry is one hour of weather forecast.
type ForecastEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	WindSpeed   float64   `json:"wind_speed"`
	Clouds      float64   `json:"clouds"`
}

// WeatherImpact is the per-hour breakdown of weather influence on the
// building heat balance, in °C-equivalent terms.
type WeatherImpact struct {
	SolarGain      float64 `json:"solar_gain"`
	WindLoss       float64 `json:"wind_loss"`
	HumidityFactor float64 `json:"humidity_factor"`
	TotalImpact    float64 `json:"total_impact"`
}

// HourlyPrediction is the predicted state for one forecast hour. Values are
// immutable once assembled; the decision engine consumes them in batch.
type HourlyPrediction struct {
	HourOffset        int           `json:"hour_offset"`
	ForecastTime      time.Time     `json:"forecast_time"`
	OutsideTemp       float64       `json:"outside_temp"`
	ComfortTarget     float64       `json:"comfort_target"`
	WeatherImpact     WeatherImpact `json:"weather_impact"`
	HeatDemand        float64       `json:"heat_demand"`
	PredictedRoomTemp float64       `json:"predicted_room_temp"`
	PredictedEnergy   float64       `json:"predicted_energy"`
	PredictedCOP      float64       `json:"predicted_cop"`
	ThermalLagUsed    float64       `json:"thermal_lag_used"`
}

// ControlDecision is the outcome of one cycle: whether to act, the settings
// to apply, and the ordered reasoning behind them.
type ControlDecision struct {
	Timestamp    time.Time          `json:"timestamp"`
	ActionNeeded bool               `json:"action_needed"`
	Settings     map[string]float64 `json:"settings"`
	Reasoning    []string           `json:"reasoning"`
	Confidence   float64            `json:"confidence"`
	Predictions  []HourlyPrediction `json:"predictions,omitempty"`
}

// Status fallbacks used wherever a snapshot field is missing. The same
// values back the feature encoder.
const (
	fallbackRoomTemp    = 20.0
	fallbackTargetTemp  = 21.0
	fallbackOutsideTemp = 10.0
	fallbackOutletTemp  = 30.0
)

func (s CurrentStatus) roomTemp() float64 {
	return orDefault(s.Temperatures.Room, fallbackRoomTemp)
}

func (s CurrentStatus) targetTemp() float64 {
	return orDefault(s.Temperatures.Target, fallbackTargetTemp)
}

func (s CurrentStatus) outsideTemp() float64 {
	return orDefault(s.Temperatures.Outside, fallbackOutsideTemp)
}

func (s CurrentStatus) outletTemp() float64 {
	return orDefault(s.Temperatures.Outlet, fallbackOutletTemp)
}

func orDefault(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
