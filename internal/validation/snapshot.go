package validation

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/crop-advisory-service/internal/models"
)

// ValidationError names the first offending field of a rejected snapshot.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SnapshotInput is the wire form of a snapshot submitted for evaluation.
// Pointer fields distinguish "missing" from zero.
type SnapshotInput struct {
	Location   string                `json:"location"`
	Region     string                `json:"region" validate:"max=128"`
	TempC      *float64              `json:"temp_c" validate:"required,finite"`
	FeelsLikeC *float64              `json:"feelslike_c" validate:"omitempty,finite"`
	Humidity   *float64              `json:"humidity" validate:"required,finite,gte=0,lte=100"`
	WindKph    *float64              `json:"wind_kph" validate:"required,finite,gte=0"`
	PrecipMM   *float64              `json:"precip_mm" validate:"required,finite,gte=0"`
	UV         *float64              `json:"uv" validate:"omitempty,finite,gte=0"`
	Condition  string                `json:"condition" validate:"max=128"`
	Forecast   *models.DailyForecast `json:"forecast,omitempty" validate:"omitempty"`
}

// ToSnapshot converts a validated input. Call ValidateSnapshotInput first.
// A missing feels-like reading takes the air temperature.
func (in SnapshotInput) ToSnapshot(now time.Time) models.WeatherSnapshot {
	s := models.WeatherSnapshot{
		Location:   models.Location{Name: in.Location, Region: in.Region},
		Condition:  in.Condition,
		Forecast:   in.Forecast,
		ObservedAt: now,
	}
	s.TempC = deref(in.TempC)
	s.FeelsLikeC = s.TempC
	if in.FeelsLikeC != nil {
		s.FeelsLikeC = *in.FeelsLikeC
	}
	s.Humidity = deref(in.Humidity)
	s.WindKph = deref(in.WindKph)
	s.PrecipMM = deref(in.PrecipMM)
	s.UV = deref(in.UV)
	return s
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("finite", isFinite)
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

func isFinite(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Float32, reflect.Float64:
		v := fl.Field().Float()
		return !math.IsNaN(v) && !math.IsInf(v, 0)
	}
	return true
}

// ValidateSnapshot rejects snapshots with non-finite or out-of-range readings.
func ValidateSnapshot(s models.WeatherSnapshot) error {
	return check(s)
}

// ValidateSnapshotInput rejects submitted snapshots with missing, non-finite
// or out-of-range readings.
func ValidateSnapshotInput(in SnapshotInput) error {
	return check(in)
}

func check(v any) error {
	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fieldPath(fe.Namespace()), Reason: reason(fe)}
	}
	return err
}

// fieldPath drops the leading struct name: "SnapshotInput.forecast.chance_of_rain" -> "forecast.chance_of_rain".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "finite":
		return "must be a finite number"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "max":
		return "is too long"
	}
	return "failed " + fe.Tag()
}
