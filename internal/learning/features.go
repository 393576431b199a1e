package learning

import "github.com/awaistahir/heatpilot/internal/history"

// NumFeatures is the length of every feature vector. The ordering below is a
// contract shared by the heuristic formulas and every regression model;
// changing it invalidates trained models.
const NumFeatures = 10

// FeatureVector is the fixed-order numeric input to the regression models:
// [outside_temp, humidity, wind_speed, cloud_cover, room_temp, target_temp,
// hour_of_day, day_of_week, month, building_mass].
type FeatureVector [NumFeatures]float64

// Conditions holds the raw inputs for one feature vector. Optional fields
// are pointers; nil means "not observed" and encodes as a fixed fallback.
type Conditions struct {
	OutsideTemp  *float64
	Humidity     *float64
	WindSpeed    *float64
	CloudCover   *float64
	RoomTemp     *float64
	TargetTemp   *float64
	HourOfDay    int
	DayOfWeek    int
	Month        int
	BuildingMass float64
}

// Encode normalizes raw conditions into a feature vector. Missing optional
// fields fall back to fixed defaults; encoding never fails.
func Encode(c Conditions) FeatureVector {
	return FeatureVector{
		orDefault(c.OutsideTemp, 0),
		orDefault(c.Humidity, 50),
		orDefault(c.WindSpeed, 0),
		orDefault(c.CloudCover, 0),
		orDefault(c.RoomTemp, 20),
		orDefault(c.TargetTemp, 21),
		float64(c.HourOfDay),
		float64(c.DayOfWeek),
		float64(c.Month),
		c.BuildingMass,
	}
}

// EncodeObservation builds the feature vector for a stored observation.
func EncodeObservation(o history.Observation) FeatureVector {
	return FeatureVector{
		o.OutsideTemp,
		o.Humidity,
		o.WindSpeed,
		o.CloudCover,
		o.RoomTemp,
		o.TargetTemp,
		float64(o.HourOfDay),
		float64(o.DayOfWeek),
		float64(o.Month),
		o.BuildingMass,
	}
}

// EncodeBuildingMass maps the configured building mass to its numeric code.
// Unrecognized values encode as medium.
func EncodeBuildingMass(mass string) float64 {
	switch mass {
	case "low":
		return 1.0
	case "medium":
		return 2.0
	case "high":
		return 3.0
	default:
		return 2.0
	}
}

func orDefault(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
