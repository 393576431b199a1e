package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// BuildingMass describes the heat-storage capacity of the structure.
type BuildingMass string

const (
	MassLow    BuildingMass = "low"
	MassMedium BuildingMass = "medium"
	MassHigh   BuildingMass = "high"
)

// HeatingSystem describes the emitter type the heat pump drives.
type HeatingSystem string

const (
	SystemRadiator   HeatingSystem = "radiator"
	SystemUnderfloor HeatingSystem = "underfloor"
	SystemMixed      HeatingSystem = "mixed"
)

// Config is the full, validated application configuration. It is built once
// at startup and passed explicitly to every component.
type Config struct {
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Weather  WeatherConfig  `mapstructure:"weather"`
	House    HouseConfig    `mapstructure:"house"`
	Advanced AdvancedConfig `mapstructure:"advanced"`
}

// MQTTConfig holds broker connection settings for the HeishaMon bridge.
type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// WeatherConfig holds forecast provider settings.
type WeatherConfig struct {
	Provider       string `mapstructure:"provider"`
	APIKey         string `mapstructure:"api_key"`
	UpdateInterval int    `mapstructure:"update_interval"` // seconds
}

// HouseConfig describes the building and the comfort schedule.
type HouseConfig struct {
	Latitude          float64       `mapstructure:"latitude"`
	Longitude         float64       `mapstructure:"longitude"`
	TargetTemperature float64       `mapstructure:"target_temperature"`
	NightSetback      float64       `mapstructure:"night_setback"`
	BuildingMass      BuildingMass  `mapstructure:"building_thermal_mass"`
	HeatingSystem     HeatingSystem `mapstructure:"heating_system_type"`
}

// AdvancedConfig holds the tunable parameters of the prediction algorithm.
type AdvancedConfig struct {
	ThermalLagHours        float64 `mapstructure:"thermal_lag_hours"`
	SolarGainFactor        float64 `mapstructure:"solar_gain_factor"`
	WindFactor             float64 `mapstructure:"wind_factor"`
	LearningRate           float64 `mapstructure:"learning_rate"`
	PredictionHorizonHours int     `mapstructure:"prediction_horizon_hours"`
	MinRuntimeMinutes      int     `mapstructure:"min_runtime_minutes"`
}

// Defaults returns a configuration with the documented default values.
func Defaults() Config {
	return Config{
		MQTT: MQTTConfig{
			Broker:      "core-mosquitto",
			Port:        1883,
			TopicPrefix: "panasonic_heat_pump",
		},
		Weather: WeatherConfig{
			Provider:       "openweathermap",
			UpdateInterval: 300,
		},
		House: HouseConfig{
			Latitude:          51.1657,
			Longitude:         10.4515,
			TargetTemperature: 21.0,
			NightSetback:      2.0,
			BuildingMass:      MassMedium,
			HeatingSystem:     SystemUnderfloor,
		},
		Advanced: AdvancedConfig{
			ThermalLagHours:        4.0,
			SolarGainFactor:        0.3,
			WindFactor:             0.1,
			LearningRate:           0.05,
			PredictionHorizonHours: 24,
			MinRuntimeMinutes:      30,
		},
	}
}

// Load reads the configuration from the given viper instance, applying
// defaults for any missing key, and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges. Out-of-range values are fatal at startup.
func (c Config) Validate() error {
	if c.House.Latitude < -90 || c.House.Latitude > 90 {
		return fmt.Errorf("invalid latitude %.4f: must be between -90 and 90", c.House.Latitude)
	}
	if c.House.Longitude < -180 || c.House.Longitude > 180 {
		return fmt.Errorf("invalid longitude %.4f: must be between -180 and 180", c.House.Longitude)
	}
	if c.House.TargetTemperature < 15 || c.House.TargetTemperature > 30 {
		return fmt.Errorf("invalid target temperature %.1f: must be between 15 and 30", c.House.TargetTemperature)
	}
	if c.Advanced.SolarGainFactor < 0 || c.Advanced.SolarGainFactor > 1 {
		return fmt.Errorf("solar_gain_factor must be between 0 and 1, got %.2f", c.Advanced.SolarGainFactor)
	}
	if c.Advanced.WindFactor < 0 || c.Advanced.WindFactor > 1 {
		return fmt.Errorf("wind_factor must be between 0 and 1, got %.2f", c.Advanced.WindFactor)
	}
	if c.Advanced.PredictionHorizonHours < 1 {
		return fmt.Errorf("prediction_horizon_hours must be at least 1, got %d", c.Advanced.PredictionHorizonHours)
	}
	return nil
}
