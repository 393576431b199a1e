package engine

import (
	"math"
	"time"

	"github.com/awaistahir/heatpilot/internal/config"
)

// Physics is the deterministic heat-balance model: pure functions of time,
// weather and building parameters, with no learned state. The solar and
// wind factors here are the adapted values, not necessarily the configured
// bases.
type Physics struct {
	TargetTemperature float64
	NightSetback      float64
	SolarGainFactor   float64
	WindFactor        float64
	BuildingMass      config.BuildingMass
	HeatingSystem     config.HeatingSystem
}

// Daytime comfort window boundaries.
const (
	dayStartHour = 6
	dayEndHour   = 22
)

// ComfortTarget returns the desired room temperature for the given time:
// the configured target during [06:00, 22:00), night setback otherwise.
// The transition is exactly at the hour boundaries.
func (p Physics) ComfortTarget(t time.Time) float64 {
	hour := t.Hour()
	if hour >= dayStartHour && hour < dayEndHour {
		return p.TargetTemperature
	}
	return p.TargetTemperature - p.NightSetback
}

// SolarGain approximates solar heat gain in °C-equivalent: a sine curve of
// solar elevation peaking at noon, reduced by cloud cover, scaled by the
// solar gain factor. Zero outside the 06:00-18:00 window.
func (p Physics) SolarGain(t time.Time, cloudCover float64) float64 {
	hour := t.Hour()
	if hour < 6 || hour > 18 {
		return 0.0
	}

	solarElevation := math.Sin(math.Pi * float64(hour-6) / 12)
	cloudReduction := 1.0 - (cloudCover / 100 * 0.8)

	const maxSolarGain = 2.0 // °C equivalent
	gain := maxSolarGain * solarElevation * cloudReduction * p.SolarGainFactor

	return math.Max(0, gain)
}

// WindLoss models convective heat loss from wind, tapering to zero once the
// outside temperature reaches 20°C.
func (p Physics) WindLoss(windSpeed, outsideTemp float64) float64 {
	return windSpeed * p.WindFactor * math.Max(0, 20-outsideTemp) / 20
}

// WeatherImpact combines solar gain, wind loss and a small humidity
// adjustment into the per-hour heat-balance impact.
func (p Physics) WeatherImpact(t time.Time, entry ForecastEntry) WeatherImpact {
	solar := p.SolarGain(t, entry.Clouds)
	wind := p.WindLoss(entry.WindSpeed, entry.Temperature)

	return WeatherImpact{
		SolarGain:      solar,
		WindLoss:       wind,
		HumidityFactor: 1.0 + (entry.Humidity-50)/500,
		TotalImpact:    solar - wind,
	}
}

// HeatDemand estimates the heat input needed to hold the comfort target:
// base loss from the inside/outside temperature difference, corrected by
// weather impact and scaled by building mass and heating system factors.
// Never negative.
func (p Physics) HeatDemand(comfortTarget, outsideTemp float64, impact WeatherImpact) float64 {
	baseDemand := math.Max(0, (comfortTarget-outsideTemp)*0.5)
	adjusted := baseDemand - impact.TotalImpact

	massFactor := 1.0
	switch p.BuildingMass {
	case config.MassLow:
		massFactor = 1.2
	case config.MassMedium:
		massFactor = 1.0
	case config.MassHigh:
		massFactor = 0.8
	}

	systemFactor := 1.0
	switch p.HeatingSystem {
	case config.SystemRadiator:
		systemFactor = 1.1
	case config.SystemUnderfloor:
		systemFactor = 0.9
	case config.SystemMixed:
		systemFactor = 1.0
	}

	return math.Max(0, adjusted*massFactor*systemFactor)
}

// ExpectedCOP estimates the coefficient of performance from the outlet and
// outside temperatures: a Carnot approximation with a practical efficiency
// factor, clamped to [2, 6]. An outlet at or below outside temperature
// returns the 6.0 ceiling outright rather than hitting the division.
func ExpectedCOP(outsideTemp, outletTemp float64) float64 {
	tempDiff := outletTemp - outsideTemp
	if tempDiff <= 0 {
		return 6.0
	}

	carnot := (outletTemp + 273.15) / tempDiff
	practical := carnot * 0.45

	return math.Max(2.0, math.Min(6.0, practical))
}

// PredictedRoomTemp estimates the room temperature after one hour of the
// given heat demand, through a first-order thermal lag response.
func PredictedRoomTemp(roomTemp, heatDemand, thermalLag float64) float64 {
	return roomTemp + heatDemand*0.5*(1-math.Exp(-1/thermalLag))
}
