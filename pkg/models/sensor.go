package models

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FeatureColumns lists the sensor features in the order the classifier was trained on.
var FeatureColumns = []string{"pH", "TDS", "Turbidity", "Gas", "ColorIndex", "Temp"}

// LabelColumn is the dataset column holding the dravya label.
const LabelColumn = "Label"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	return v
}

// SensorInput is the loosely-typed request body. Every field is required.
type SensorInput struct {
	PH         *float64 `json:"pH" validate:"required,finite"`
	TDS        *float64 `json:"TDS" validate:"required,finite"`
	Turbidity  *float64 `json:"Turbidity" validate:"required,finite"`
	Gas        *float64 `json:"Gas" validate:"required,finite"`
	ColorIndex *float64 `json:"ColorIndex" validate:"required,finite"`
	Temp       *float64 `json:"Temp" validate:"required,finite"`
}

// NewSensorInput builds a complete input from plain values.
func NewSensorInput(ph, tds, turbidity, gas, colorIndex, temp float64) SensorInput {
	return SensorInput{
		PH:         &ph,
		TDS:        &tds,
		Turbidity:  &turbidity,
		Gas:        &gas,
		ColorIndex: &colorIndex,
		Temp:       &temp,
	}
}

// Reading validates the input and returns the immutable reading.
func (in SensorInput) Reading() (SensorReading, error) {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return SensorReading{}, &ValidationError{Fields: fields, Err: err}
		}
		return SensorReading{}, &ValidationError{Err: err}
	}
	return SensorReading{
		pH:         *in.PH,
		tds:        *in.TDS,
		turbidity:  *in.Turbidity,
		gas:        *in.Gas,
		colorIndex: *in.ColorIndex,
		temp:       *in.Temp,
	}, nil
}

// SensorReading is a validated set of six sensor values.
type SensorReading struct {
	pH         float64
	tds        float64
	turbidity  float64
	gas        float64
	colorIndex float64
	temp       float64
}

// ReadingFromFeatures builds a reading from values in FeatureColumns order.
func ReadingFromFeatures(f [6]float64) SensorReading {
	return SensorReading{pH: f[0], tds: f[1], turbidity: f[2], gas: f[3], colorIndex: f[4], temp: f[5]}
}

// Features returns the reading in FeatureColumns order.
func (r SensorReading) Features() [6]float64 {
	return [6]float64{r.pH, r.tds, r.turbidity, r.gas, r.colorIndex, r.temp}
}

// ValidationError reports a malformed sensor input.
type ValidationError struct {
	Fields []string
	Err    error
}

func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("invalid input: missing or invalid fields %s", strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("invalid input: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
