package rules

import (
	"fmt"
	"strconv"

	"github.com/kjstillabower/crop-advisory-service/internal/crops"
	"github.com/kjstillabower/crop-advisory-service/internal/models"
)

// Input is what a rule predicate sees: the snapshot, the crop key as
// requested (normalized), and the crop's optimal range when it has one.
type Input struct {
	Snapshot  models.WeatherSnapshot
	Crop      string
	TempRange *crops.Range
}

// Rule is one row of a threshold table. Title and Message render the
// human-readable text from live values.
type Rule struct {
	Key      string
	Category models.Category
	Priority models.Priority
	Applies  func(in Input) bool
	Title    func(in Input) string
	Message  func(in Input) string
}

// Thresholds. These values are part of the alerting contract.
const (
	HighTempC       = 35.0
	HeavyRainMM     = 10.0
	PestHumidityPct = 85.0
	StrongWindKph   = 25.0
	DryHumidityPct  = 30.0
	DryTempC        = 30.0
	HighUVIndex     = 8.0
)

// WeatherRules is the general weather table, evaluated for every crop.
var WeatherRules = []Rule{
	{
		Key:      "temp",
		Category: models.CategoryWeather,
		Priority: models.PriorityHigh,
		Applies:  func(in Input) bool { return in.Snapshot.TempC > HighTempC },
		Title:    fixed("High Temperature Alert"),
		Message: func(in Input) string {
			return fmt.Sprintf("Temperature is %s°C. Consider providing shade for %s crops and increase irrigation frequency.",
				num(in.Snapshot.TempC), in.Crop)
		},
	},
	{
		Key:      "rain",
		Category: models.CategoryWeather,
		Priority: models.PriorityMedium,
		Applies:  func(in Input) bool { return in.Snapshot.PrecipMM > HeavyRainMM },
		Title:    fixed("Heavy Rainfall Detected"),
		Message: func(in Input) string {
			return fmt.Sprintf("%smm rainfall recorded. Avoid spraying pesticides and check for waterlogging in %s fields.",
				num(in.Snapshot.PrecipMM), in.Crop)
		},
	},
	{
		Key:      "humidity",
		Category: models.CategoryPest,
		Priority: models.PriorityMedium,
		Applies:  func(in Input) bool { return in.Snapshot.Humidity > PestHumidityPct },
		Title:    fixed("High Humidity Pest Risk"),
		Message: func(in Input) string {
			return fmt.Sprintf("Humidity at %s%%. Monitor %s crops for fungal diseases and pest activity.",
				num(in.Snapshot.Humidity), in.Crop)
		},
	},
	{
		Key:      "wind",
		Category: models.CategoryWeather,
		Priority: models.PriorityMedium,
		Applies:  func(in Input) bool { return in.Snapshot.WindKph > StrongWindKph },
		Title:    fixed("Strong Wind Warning"),
		Message: func(in Input) string {
			return fmt.Sprintf("Wind speed is %s km/h. Secure young plants and avoid aerial spraying operations.",
				num(in.Snapshot.WindKph))
		},
	},
	{
		Key:      "irrigation",
		Category: models.CategoryIrrigation,
		Priority: models.PriorityHigh,
		Applies: func(in Input) bool {
			return in.Snapshot.Humidity < DryHumidityPct && in.Snapshot.TempC > DryTempC
		},
		Title: fixed("Irrigation Required"),
		Message: func(in Input) string {
			return fmt.Sprintf("Low humidity (%s%%) and high temperature. Increase watering frequency for %s crops.",
				num(in.Snapshot.Humidity), in.Crop)
		},
	},
	{
		Key:      "uv",
		Category: models.CategoryGeneral,
		Priority: models.PriorityLow,
		Applies:  func(in Input) bool { return in.Snapshot.UV > HighUVIndex },
		Title:    fixed("High UV Index"),
		Message: func(in Input) string {
			return fmt.Sprintf("UV index is %s. Avoid midday field work and ensure worker protection.", num(in.Snapshot.UV))
		},
	},
}

// CropRules compare the temperature against the crop's optimal range. Both
// are skipped for crops without a range.
var CropRules = []Rule{
	{
		Key:      "crop-temp-low",
		Category: models.CategoryWeather,
		Priority: models.PriorityMedium,
		Applies: func(in Input) bool {
			return in.TempRange != nil && in.Snapshot.TempC < in.TempRange.Min
		},
		Title: func(in Input) string { return crops.Title(in.Crop) + " Temperature Alert" },
		Message: func(in Input) string {
			return fmt.Sprintf("Temperature (%s°C) is below optimal range for %s. Growth may be affected.",
				num(in.Snapshot.TempC), in.Crop)
		},
	},
	{
		Key:      "crop-temp-high",
		Category: models.CategoryWeather,
		Priority: models.PriorityHigh,
		Applies: func(in Input) bool {
			return in.TempRange != nil && in.Snapshot.TempC > in.TempRange.Max
		},
		Title: func(in Input) string { return crops.Title(in.Crop) + " Heat Stress" },
		Message: func(in Input) string {
			return fmt.Sprintf("Temperature (%s°C) is above optimal range for %s. Implement cooling measures.",
				num(in.Snapshot.TempC), in.Crop)
		},
	},
}

func fixed(s string) func(Input) string {
	return func(Input) string { return s }
}

// num formats a reading the way it was reported: 36 -> "36", 36.2 -> "36.2".
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
