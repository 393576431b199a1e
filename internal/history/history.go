package history

import (
	"time"
)

// Observation is one realized control-cycle outcome. Observations are
// append-only: created once per cycle and never mutated afterwards.
type Observation struct {
	Timestamp         time.Time `json:"timestamp"`
	OutsideTemp       float64   `json:"outside_temp"`
	Humidity          float64   `json:"humidity"`
	WindSpeed         float64   `json:"wind_speed"`
	CloudCover        float64   `json:"cloud_cover"`
	RoomTemp          float64   `json:"room_temp"`
	TargetTemp        float64   `json:"target_temp"`
	OutletTemp        float64   `json:"outlet_temp"`
	InletTemp         float64   `json:"inlet_temp"`
	PumpFreq          float64   `json:"pump_freq"`
	CompressorFreq    float64   `json:"compressor_freq"`
	EnergyConsumption float64   `json:"energy_consumption"`
	EnergyProduction  float64   `json:"energy_production"`
	COP               float64   `json:"cop"`
	PredictedTemp     float64   `json:"predicted_temp"`
	PredictedCOP      float64   `json:"predicted_cop"`
	HourOfDay         int       `json:"hour_of_day"`
	DayOfWeek         int       `json:"day_of_week"`
	Month             int       `json:"month"`
	BuildingMass      float64   `json:"building_mass"`
	HeatingSystem     string    `json:"heating_system_type"`
}

// Accuracy records how well a trained model fits its training window.
type Accuracy struct {
	MAE       float64   `json:"mae"`
	Samples   int       `json:"samples"`
	TrainedAt time.Time `json:"trained_at"`
}

// Snapshot captures the configuration the stored history was collected
// under, so a reload can detect a changed setup.
type Snapshot struct {
	LearningRate    float64 `json:"learning_rate"`
	ThermalLagHours float64 `json:"thermal_lag_hours"`
	BuildingMass    string  `json:"building_mass"`
	HeatingSystem   string  `json:"heating_system_type"`
}
