package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.MQTT.Broker != "core-mosquitto" || cfg.MQTT.Port != 1883 {
		t.Errorf("unexpected MQTT defaults: %+v", cfg.MQTT)
	}
	if cfg.MQTT.TopicPrefix != "panasonic_heat_pump" {
		t.Errorf("topic prefix: %q", cfg.MQTT.TopicPrefix)
	}
	if cfg.House.TargetTemperature != 21.0 || cfg.House.NightSetback != 2.0 {
		t.Errorf("unexpected house defaults: %+v", cfg.House)
	}
	if cfg.House.BuildingMass != MassMedium || cfg.House.HeatingSystem != SystemUnderfloor {
		t.Errorf("unexpected building defaults: %+v", cfg.House)
	}
	if cfg.Advanced.ThermalLagHours != 4.0 || cfg.Advanced.PredictionHorizonHours != 24 {
		t.Errorf("unexpected advanced defaults: %+v", cfg.Advanced)
	}
}

func TestLoadOverrides(t *testing.T) {
	v := viper.New()
	v.Set("mqtt.broker", "10.0.0.5")
	v.Set("house.target_temperature", 22.5)
	v.Set("house.building_thermal_mass", "high")
	v.Set("advanced.prediction_horizon_hours", 12)

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.MQTT.Broker != "10.0.0.5" {
		t.Errorf("broker: %q", cfg.MQTT.Broker)
	}
	if cfg.House.TargetTemperature != 22.5 {
		t.Errorf("target: %.1f", cfg.House.TargetTemperature)
	}
	if cfg.House.BuildingMass != MassHigh {
		t.Errorf("mass: %q", cfg.House.BuildingMass)
	}
	if cfg.Advanced.PredictionHorizonHours != 12 {
		t.Errorf("horizon: %d", cfg.Advanced.PredictionHorizonHours)
	}
	// Untouched keys keep their defaults.
	if cfg.MQTT.Port != 1883 {
		t.Errorf("port default lost: %d", cfg.MQTT.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"latitude out of range", func(c *Config) { c.House.Latitude = 91 }, true},
		{"longitude out of range", func(c *Config) { c.House.Longitude = -181 }, true},
		{"target too low", func(c *Config) { c.House.TargetTemperature = 10 }, true},
		{"target too high", func(c *Config) { c.House.TargetTemperature = 35 }, true},
		{"solar factor negative", func(c *Config) { c.Advanced.SolarGainFactor = -0.1 }, true},
		{"solar factor above one", func(c *Config) { c.Advanced.SolarGainFactor = 1.5 }, true},
		{"wind factor above one", func(c *Config) { c.Advanced.WindFactor = 2 }, true},
		{"zero horizon", func(c *Config) { c.Advanced.PredictionHorizonHours = 0 }, true},
		{"boundary latitude ok", func(c *Config) { c.House.Latitude = -90 }, false},
		{"boundary target ok", func(c *Config) { c.House.TargetTemperature = 30 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	v := viper.New()
	v.Set("house.target_temperature", 50)

	if _, err := Load(v); err == nil {
		t.Error("invalid config should fail to load")
	}
}
