package engine

import (
	"fmt"
	"math"
	"time"
)

// SettingTargetTemperature is the settings-map key the device collaborator
// maps to the zone 1 heat request temperature.
const SettingTargetTemperature = "target_temperature"

// Optimal-target bounds applied by the comfort rule.
const (
	minSettableTarget = 15.0
	maxSettableTarget = 30.0
)

// Decide turns a prediction horizon into a single control decision. It is
// stateless: four independent rules run in order, each may adjust the
// settings and append reasoning. A numeric setting placed by an earlier
// rule is adjusted by later rules, not recomputed from scratch.
// ActionNeeded is true iff any rule fired.
func Decide(status CurrentStatus, predictions []HourlyPrediction, thermalLag, confidence float64) ControlDecision {
	decision := ControlDecision{
		Timestamp:  time.Now(),
		Settings:   map[string]float64{},
		Reasoning:  []string{},
		Confidence: confidence,
	}

	if len(predictions) == 0 {
		return decision
	}

	roomTemp := status.roomTemp()

	applyProactiveLeadTime(&decision, predictions, roomTemp, thermalLag)
	applyComfortCorrection(&decision, predictions, roomTemp, thermalLag)
	applySolarOptimization(&decision, predictions)
	applyWeatherAdjustments(&decision, predictions)

	decision.Predictions = predictions
	return decision
}

// applyProactiveLeadTime starts heating early when a higher comfort target
// is coming up within the thermal lag window.
func applyProactiveLeadTime(d *ControlDecision, predictions []HourlyPrediction, roomTemp, thermalLag float64) {
	maxUpcoming := roomTemp
	for _, p := range predictions[:minInt(6, len(predictions))] {
		if p.ComfortTarget > maxUpcoming {
			maxUpcoming = p.ComfortTarget
		}
	}

	if maxUpcoming-roomTemp <= 1.0 {
		return
	}

	offset := int(math.Round(thermalLag))
	if offset >= len(predictions) {
		offset = len(predictions) - 1
	}

	if predictions[offset].ComfortTarget > roomTemp+0.5 {
		d.ActionNeeded = true
		d.Settings[SettingTargetTemperature] = maxUpcoming
		d.Reasoning = append(d.Reasoning, fmt.Sprintf("Proactive heating for %.1fh thermal lag", thermalLag))
	}
}

// applyComfortCorrection reacts to an immediate comfort error by setting an
// optimal target weighted over the coming hours.
func applyComfortCorrection(d *ControlDecision, predictions []HourlyPrediction, roomTemp, thermalLag float64) {
	tempError := predictions[0].ComfortTarget - roomTemp
	if math.Abs(tempError) <= 0.5 {
		return
	}

	d.ActionNeeded = true
	d.Settings[SettingTargetTemperature] = optimalTarget(predictions, thermalLag)
	d.Reasoning = append(d.Reasoning, fmt.Sprintf("Temperature error: %.1f°C", tempError))
}

// optimalTarget averages the next 12 hourly comfort targets with harmonic
// decay weights 1/(i+1), nudged by half the target change at the thermal
// lag offset, clamped to the settable range.
func optimalTarget(predictions []HourlyPrediction, thermalLag float64) float64 {
	weightedSum := 0.0
	weightTotal := 0.0
	for i, p := range predictions[:minInt(12, len(predictions))] {
		w := 1.0 / float64(i+1)
		weightedSum += p.ComfortTarget * w
		weightTotal += w
	}
	target := weightedSum / weightTotal

	lagHours := int(thermalLag)
	if lagHours < len(predictions) {
		target += (predictions[lagHours].ComfortTarget - predictions[0].ComfortTarget) * 0.5
	}

	return math.Max(minSettableTarget, math.Min(maxSettableTarget, target))
}

// applySolarOptimization lowers the target during sustained solar gain.
func applySolarOptimization(d *ControlDecision, predictions []HourlyPrediction) {
	if len(predictions) < 6 {
		return
	}

	var gains []float64
	for _, p := range predictions[:minInt(12, len(predictions))] {
		if p.WeatherImpact.SolarGain > 1.0 {
			gains = append(gains, p.WeatherImpact.SolarGain)
		}
	}
	if len(gains) == 0 {
		return
	}

	avgGain := 0.0
	for _, g := range gains {
		avgGain += g
	}
	avgGain /= float64(len(gains))

	if avgGain <= 1.5 {
		return
	}

	reduction := math.Min(1.0, avgGain*0.3)
	d.ActionNeeded = true
	d.Settings[SettingTargetTemperature] = currentTarget(d, predictions) - reduction
	d.Reasoning = append(d.Reasoning, fmt.Sprintf("Solar gain optimization: -%.1f°C", reduction))
}

// applyWeatherAdjustments pre-heats ahead of a cold front and compensates
// for sustained wind loss. The two adjustments are additive when both fire.
func applyWeatherAdjustments(d *ControlDecision, predictions []HourlyPrediction) {
	if len(predictions) < 3 {
		return
	}

	minFuture := math.Inf(1)
	for _, p := range predictions[1:minInt(6, len(predictions))] {
		if p.OutsideTemp < minFuture {
			minFuture = p.OutsideTemp
		}
	}
	if drop := predictions[0].OutsideTemp - minFuture; drop > 5.0 {
		preheat := math.Min(2.0, drop*0.2)
		d.ActionNeeded = true
		d.Settings[SettingTargetTemperature] = currentTarget(d, predictions) + preheat
		d.Reasoning = append(d.Reasoning, fmt.Sprintf("Cold weather preparation: +%.1f°C", preheat))
	}

	maxWindLoss := 0.0
	for _, p := range predictions[:minInt(6, len(predictions))] {
		if p.WeatherImpact.WindLoss > maxWindLoss {
			maxWindLoss = p.WeatherImpact.WindLoss
		}
	}
	if maxWindLoss > 1.0 {
		adjustment := math.Min(1.5, maxWindLoss*0.5)
		d.ActionNeeded = true
		d.Settings[SettingTargetTemperature] = currentTarget(d, predictions) + adjustment
		d.Reasoning = append(d.Reasoning, fmt.Sprintf("Wind compensation: +%.1f°C", adjustment))
	}
}

// currentTarget is the target a rule adjusts: the value an earlier rule
// already placed, or the hour-0 comfort target.
func currentTarget(d *ControlDecision, predictions []HourlyPrediction) float64 {
	if t, ok := d.Settings[SettingTargetTemperature]; ok {
		return t
	}
	return predictions[0].ComfortTarget
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
