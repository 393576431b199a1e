package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/awaistahir/heatpilot/internal/config"
	"github.com/awaistahir/heatpilot/internal/engine"
	"github.com/awaistahir/heatpilot/internal/heisha"
	"github.com/awaistahir/heatpilot/internal/history"
	"github.com/awaistahir/heatpilot/internal/learning"
	"github.com/awaistahir/heatpilot/internal/uiapi"
	"github.com/awaistahir/heatpilot/internal/weather"
)

const (
	cyclePeriod   = 5 * time.Minute
	errorCooldown = time.Minute
)

func main() {
	var cfgFile string
	var dbPath string
	var port int

	rootCmd := &cobra.Command{
		Use:   "heatpilotd",
		Short: "HeatPilot daemon - weather-predictive heat pump control loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			if dbPath == "" {
				home, _ := os.UserHomeDir()
				dbPath = filepath.Join(home, ".heatpilot", "heatpilot.db")
			}
			os.MkdirAll(filepath.Dir(dbPath), 0755)

			return run(cfg, dbPath, port)
		},
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.heatpilot/config.yaml)")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "database path (default is $HOME/.heatpilot/heatpilot.db)")
	rootCmd.Flags().IntVarP(&port, "port", "p", 8099, "HTTP API port")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cfgFile string) (config.Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return config.Config{}, err
		}
		configDir := filepath.Join(home, ".heatpilot")
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.AutomaticEnv()
	v.ReadInConfig()

	return config.Load(v)
}

func run(cfg config.Config, dbPath string, port int) error {
	store, err := history.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer store.Close()

	store.SetSnapshot(history.Snapshot{
		LearningRate:    cfg.Advanced.LearningRate,
		ThermalLagHours: cfg.Advanced.ThermalLagHours,
		BuildingMass:    string(cfg.House.BuildingMass),
		HeatingSystem:   string(cfg.House.HeatingSystem),
	})
	log.Printf("loaded %d historical observations", store.Len())

	learner := learning.NewEngine(cfg, store)
	if store.Len() >= learning.MinSamples {
		go func() {
			if err := learner.Retrain(); err != nil {
				log.Printf("initial retrain: %v", err)
			}
		}()
	}

	predictor := engine.NewPredictor(cfg, learner)

	device, err := heisha.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to heat pump: %w", err)
	}
	defer device.Close()

	weatherClient := weather.NewClient(cfg.Weather.APIKey, cfg.House.Latitude, cfg.House.Longitude)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: uiapi.NewServer(cfg, predictor, store, learner, weatherClient, device).Handler(),
	}
	go func() {
		log.Printf("HTTP API listening on port %d", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("starting predictive control loop")
	loop := &controlLoop{
		cfg:       cfg,
		predictor: predictor,
		device:    device,
		weather:   weatherClient,
	}
	loop.run(ctx)

	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	if err := store.Flush(); err != nil {
		log.Printf("flushing history: %v", err)
	}
	return nil
}

// controlLoop drives the periodic prediction cycle. Any cycle failure
// degrades to "no action" and the loop continues after a cooldown; a single
// bad cycle never halts the controller.
type controlLoop struct {
	cfg       config.Config
	predictor *engine.Predictor
	device    *heisha.Client
	weather   *weather.Client

	lastApplied time.Time
}

func (l *controlLoop) run(ctx context.Context) {
	for {
		wait := cyclePeriod
		if err := l.cycle(ctx); err != nil {
			log.Printf("control cycle: %v", err)
			wait = errorCooldown
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (l *controlLoop) cycle(ctx context.Context) error {
	now := time.Now()
	status := l.device.Status()

	forecast, err := l.weather.Forecast(ctx, l.cfg.Advanced.PredictionHorizonHours)
	if err != nil {
		return fmt.Errorf("fetching forecast: %w", err)
	}

	decision, err := l.predictor.Predict(now, status, forecast)
	if err != nil {
		return fmt.Errorf("prediction: %w", err)
	}

	if decision.ActionNeeded {
		l.apply(now, decision)
	}

	if err := l.predictor.RecordOutcome(now, status, forecast, decision); err != nil {
		log.Printf("recording observation: %v", err)
	}

	return nil
}

// apply pushes the decision's settings to the device. Changes within the
// minimum runtime of the previous one are held back to avoid short-cycling
// the compressor.
func (l *controlLoop) apply(now time.Time, decision engine.ControlDecision) {
	minRuntime := time.Duration(l.cfg.Advanced.MinRuntimeMinutes) * time.Minute
	if !l.lastApplied.IsZero() && now.Sub(l.lastApplied) < minRuntime {
		log.Printf("holding settings %v: %.0fm since last change, minimum runtime %v",
			decision.Settings, now.Sub(l.lastApplied).Minutes(), minRuntime)
		return
	}

	if err := l.device.ApplySettings(decision.Settings); err != nil {
		log.Printf("applying settings: %v", err)
		return
	}
	l.lastApplied = now
	log.Printf("applied settings %v (%v)", decision.Settings, decision.Reasoning)
}
