package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/awaistahir/heatpilot/internal/config"
	"github.com/awaistahir/heatpilot/internal/engine"
	"github.com/awaistahir/heatpilot/internal/heisha"
	"github.com/awaistahir/heatpilot/internal/history"
	"github.com/awaistahir/heatpilot/internal/learning"
	"github.com/awaistahir/heatpilot/internal/weather"
)

var (
	cfgFile string
	dbPath  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "heatpilot",
		Short: "HeatPilot - Weather-predictive heat pump control",
		Long: `HeatPilot steers a Panasonic Aquarea heat pump ahead of the weather:
it combines a physical heat-balance model with learned corrections to
decide target temperatures before the house feels the change.`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.heatpilot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default is $HOME/.heatpilot/heatpilot.db)")

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(predictCmd())
	rootCmd.AddCommand(forecastCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(learningCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".heatpilot")
		os.MkdirAll(configDir, 0755)

		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()
	viper.ReadInConfig()

	if dbPath == "" {
		home, _ := os.UserHomeDir()
		dbPath = filepath.Join(home, ".heatpilot", "heatpilot.db")
	}
}

func loadConfig() (config.Config, error) {
	return config.Load(viper.GetViper())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			configDir := filepath.Join(home, ".heatpilot")
			os.MkdirAll(configDir, 0755)
			path := filepath.Join(configDir, "config.yaml")

			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists: %s", path)
			}

			cfg := config.Defaults()
			content := fmt.Sprintf(`mqtt:
  broker: %s
  port: %d
  username: ""
  password: ""
  topic_prefix: %s

weather:
  provider: %s
  api_key: ""
  update_interval: %d

house:
  latitude: %.4f
  longitude: %.4f
  target_temperature: %.1f
  night_setback: %.1f
  building_thermal_mass: %s
  heating_system_type: %s

advanced:
  thermal_lag_hours: %.1f
  solar_gain_factor: %.2f
  wind_factor: %.2f
  learning_rate: %.2f
  prediction_horizon_hours: %d
  min_runtime_minutes: %d
`,
				cfg.MQTT.Broker, cfg.MQTT.Port, cfg.MQTT.TopicPrefix,
				cfg.Weather.Provider, cfg.Weather.UpdateInterval,
				cfg.House.Latitude, cfg.House.Longitude,
				cfg.House.TargetTemperature, cfg.House.NightSetback,
				cfg.House.BuildingMass, cfg.House.HeatingSystem,
				cfg.Advanced.ThermalLagHours, cfg.Advanced.SolarGainFactor,
				cfg.Advanced.WindFactor, cfg.Advanced.LearningRate,
				cfg.Advanced.PredictionHorizonHours, cfg.Advanced.MinRuntimeMinutes)

			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return err
			}

			fmt.Printf("✓ Wrote default config: %s\n", path)
			fmt.Println("\nNext steps:")
			fmt.Println("  1. Set your OpenWeatherMap API key under weather.api_key")
			fmt.Println("  2. Set house.latitude / house.longitude")
			fmt.Println("  3. Run one prediction: heatpilot predict")

			return nil
		},
	}
}

func predictCmd() *cobra.Command {
	var statusFile string
	var record bool

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run one prediction cycle and print the control decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := history.Open(dbPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer store.Close()

			learner := learning.NewEngine(cfg, store)
			if store.Len() >= learning.MinSamples {
				if err := learner.Retrain(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: retrain failed: %v\n", err)
				}
			}

			status, device, err := readStatus(statusFile, cfg)
			if err != nil {
				return err
			}
			if device != nil {
				defer device.Close()
			}

			weatherClient := weather.NewClient(cfg.Weather.APIKey, cfg.House.Latitude, cfg.House.Longitude)
			forecast, err := weatherClient.Forecast(ctx, cfg.Advanced.PredictionHorizonHours)
			if err != nil {
				return fmt.Errorf("fetching forecast: %w", err)
			}

			predictor := engine.NewPredictor(cfg, learner)
			decision, err := predictor.Predict(time.Now(), status, forecast)
			if err != nil {
				return err
			}

			if record {
				if err := predictor.RecordOutcome(time.Now(), status, forecast, decision); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: recording observation: %v\n", err)
				}
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(decision)
		},
	}

	cmd.Flags().StringVarP(&statusFile, "status", "s", "", "Read heat pump status from a JSON file instead of MQTT")
	cmd.Flags().BoolVar(&record, "record", false, "Store this cycle as a learning observation")

	return cmd
}

// readStatus loads the pump status either from a JSON file or from a live
// broker connection. The returned client is non-nil only for the live case.
func readStatus(statusFile string, cfg config.Config) (engine.CurrentStatus, *heisha.Client, error) {
	if statusFile != "" {
		data, err := os.ReadFile(statusFile)
		if err != nil {
			return engine.CurrentStatus{}, nil, fmt.Errorf("reading status file: %w", err)
		}
		var status engine.CurrentStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return engine.CurrentStatus{}, nil, fmt.Errorf("parsing status file: %w", err)
		}
		return status, nil, nil
	}

	device, err := heisha.Connect(cfg.MQTT)
	if err != nil {
		return engine.CurrentStatus{}, nil, fmt.Errorf("connecting to heat pump: %w", err)
	}

	// Give HeishaMon a moment to publish its parameter stream.
	time.Sleep(3 * time.Second)
	return device.Status(), device, nil
}

func forecastCmd() *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Fetch and print the hourly weather forecast",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if hours <= 0 {
				hours = cfg.Advanced.PredictionHorizonHours
			}

			client := weather.NewClient(cfg.Weather.APIKey, cfg.House.Latitude, cfg.House.Longitude)
			entries, err := client.Forecast(context.Background(), hours)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		},
	}

	cmd.Flags().IntVarP(&hours, "hours", "H", 0, "Forecast horizon in hours (default from config)")

	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored observations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(dbPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer store.Close()

			latest := store.Latest(limit)

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(latest)
			}

			if len(latest) == 0 {
				fmt.Println("No observations stored")
				return nil
			}

			fmt.Printf("Total observations: %d (showing last %d)\n\n", store.Len(), len(latest))
			fmt.Printf("%-20s %7s %7s %8s %7s %6s\n", "TIME", "ROOM", "OUTSIDE", "OUTLET", "ENERGY", "COP")
			fmt.Println("------------------------------------------------------------")
			for _, o := range latest {
				fmt.Printf("%-20s %6.1f° %6.1f° %7.1f° %6.2f %6.2f\n",
					o.Timestamp.Format("2006-01-02 15:04"),
					o.RoomTemp, o.OutsideTemp, o.OutletTemp,
					o.EnergyConsumption, o.COP)
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of observations to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

func learningCmd() *cobra.Command {
	var retrain bool

	cmd := &cobra.Command{
		Use:   "learning",
		Short: "Show model accuracy and adaptation recommendations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := history.Open(dbPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer store.Close()

			learner := learning.NewEngine(cfg, store)

			if retrain {
				if store.Len() < learning.MinSamples {
					return fmt.Errorf("not enough observations to train: have %d, need %d",
						store.Len(), learning.MinSamples)
				}
				if err := learner.Retrain(); err != nil {
					return fmt.Errorf("retraining: %w", err)
				}
				fmt.Println("✓ Models retrained")
			}

			report := map[string]interface{}{
				"samples":         learner.Samples(),
				"confidence":      learner.Confidence(),
				"models":          learner.Models(),
				"recommendations": learner.Recommendations(),
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().BoolVar(&retrain, "retrain", false, "Retrain the models before reporting")

	return cmd
}
