package heisha

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/awaistahir/heatpilot/internal/config"
	"github.com/awaistahir/heatpilot/internal/engine"
)

// staleAfter is how long without any HeishaMon message before the status
// snapshot reports the pump as disconnected.
const staleAfter = 5 * time.Minute

// HeishaMon parameter names used to assemble a status snapshot.
const (
	paramOutletTemp     = "Main_Outlet_Temp"
	paramInletTemp      = "Main_Inlet_Temp"
	paramOutsideTemp    = "Outside_Temp"
	paramRoomTemp       = "Room_Thermostat_Temp"
	paramTargetTemp     = "Z1_Heat_Request_Temp"
	paramState          = "Heatpump_State"
	paramMode           = "Operating_Mode_State"
	paramPumpFreq       = "Pump_Freq"
	paramCompressorFreq = "Compressor_Freq"
	paramEnergyIn       = "Energy_Consumption"
	paramEnergyOut      = "Energy_Production"
)

// Client talks to a Panasonic heat pump through a HeishaMon bridge over
// MQTT: it accumulates the parameter stream into a status snapshot and
// publishes commands.
type Client struct {
	client      mqtt.Client
	topicPrefix string

	mu         sync.Mutex
	params     map[string]float64
	lastUpdate time.Time
}

// Connect connects to the broker and subscribes to the HeishaMon parameter
// topics.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		topicPrefix: cfg.TopicPrefix,
		params:      map[string]float64{},
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID("heatpilot")
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectTimeout(30 * time.Second)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		topic := cfg.TopicPrefix + "/main/#"
		if token := client.Subscribe(topic, 0, c.onMessage); token.Wait() && token.Error() != nil {
			log.Printf("heisha: subscribing to %s: %v", topic, token.Error())
		}
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("heisha: connection lost: %v", err)
	})

	c.client = mqtt.NewClient(opts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	log.Printf("heisha: connected to %s:%d", cfg.Broker, cfg.Port)
	return c, nil
}

// Close disconnects from the broker.
func (c *Client) Close() {
	c.client.Disconnect(250)
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	parts := strings.Split(msg.Topic(), "/")
	if len(parts) < 3 {
		return
	}
	name := parts[len(parts)-1]

	value, err := strconv.ParseFloat(strings.TrimSpace(string(msg.Payload())), 64)
	if err != nil {
		return
	}

	c.mu.Lock()
	c.params[name] = value
	c.lastUpdate = time.Now()
	c.mu.Unlock()
}

// Status assembles the current status snapshot from the accumulated
// parameter stream. COP is derived from energy production over consumption
// when consumption is positive.
func (c *Client) Status() engine.CurrentStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := engine.CurrentStatus{
		Timestamp: time.Now(),
		Connected: !c.lastUpdate.IsZero() && time.Since(c.lastUpdate) < staleAfter,
		Temperatures: engine.Temperatures{
			Outlet:  c.param(paramOutletTemp),
			Inlet:   c.param(paramInletTemp),
			Outside: c.param(paramOutsideTemp),
			Room:    c.param(paramRoomTemp),
			Target:  c.param(paramTargetTemp),
		},
		System: engine.SystemStatus{
			State:             c.param(paramState),
			Mode:              c.param(paramMode),
			PumpFrequency:     c.param(paramPumpFreq),
			CompressorFreq:    c.param(paramCompressorFreq),
			EnergyConsumption: c.param(paramEnergyIn),
			EnergyProduction:  c.param(paramEnergyOut),
		},
	}

	if in, out := status.System.EnergyConsumption, status.System.EnergyProduction; in != nil && out != nil && *in > 0 {
		cop := *out / *in
		status.System.COP = &cop
	}

	return status
}

func (c *Client) param(name string) *float64 {
	if v, ok := c.params[name]; ok {
		value := v
		return &value
	}
	return nil
}

// IsHeatingActive reports whether the pump or compressor is running.
func (c *Client) IsHeatingActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params[paramPumpFreq] > 0 || c.params[paramCompressorFreq] > 0
}

// ApplySettings maps a control decision's settings to device commands.
func (c *Client) ApplySettings(settings map[string]float64) error {
	if t, ok := settings[engine.SettingTargetTemperature]; ok {
		if err := c.SetTargetTemperature(t); err != nil {
			return err
		}
	}
	return nil
}

// SetTargetTemperature sets the zone 1 heat request temperature. Values
// outside the 15-30°C device range are rejected.
func (c *Client) SetTargetTemperature(temperature float64) error {
	if temperature < 15.0 || temperature > 30.0 {
		return fmt.Errorf("target temperature %.1f°C outside valid range (15-30°C)", temperature)
	}
	return c.command("SetZ1HeatRequestTemperature", strconv.Itoa(int(temperature)))
}

// SetMode sets the heat pump operating mode (off, heat, cool, auto).
func (c *Client) SetMode(mode string) error {
	modes := map[string]string{"off": "0", "heat": "1", "cool": "2", "auto": "3"}
	value, ok := modes[strings.ToLower(mode)]
	if !ok {
		return fmt.Errorf("invalid heat pump mode: %s", mode)
	}
	return c.command("SetHeatPump", value)
}

// SetQuietMode enables or disables quiet mode.
func (c *Client) SetQuietMode(enabled bool) error {
	return c.command("SetQuietMode", boolValue(enabled))
}

// SetHolidayMode enables or disables holiday mode.
func (c *Client) SetHolidayMode(enabled bool) error {
	return c.command("SetHolidayMode", boolValue(enabled))
}

// ForceDefrost triggers a defrost cycle.
func (c *Client) ForceDefrost() error {
	return c.command("SetForceDefrost", "1")
}

func (c *Client) command(name, value string) error {
	topic := fmt.Sprintf("%s/commands/%s", c.topicPrefix, name)
	if token := c.client.Publish(topic, 0, false, value); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publishing %s: %w", name, token.Error())
	}
	log.Printf("heisha: %s = %s", name, value)
	return nil
}

func boolValue(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
