package scoring

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidDemographics = errors.New("invalid demographics")

// Sex values accepted on intake.
const (
	SexMale           = "male"
	SexFemale         = "female"
	SexPreferNotToSay = "prefer_not_to_say"
)

// Demographics are turned into pseudo-symptom codes so weight tables can
// carry age, BMI and sex priors next to ordinary symptoms.
type Demographics struct {
	Age      int     `json:"age" yaml:"age"`
	Sex      string  `json:"sex" yaml:"sex"`
	HeightCm float64 `json:"height_cm" yaml:"height_cm"`
	WeightKg float64 `json:"weight_kg" yaml:"weight_kg"`
}

func (d Demographics) Validate() error {
	switch {
	case d.Age < 10 || d.Age > 100:
		return fmt.Errorf("%w: age %d outside 10-100", ErrInvalidDemographics, d.Age)
	case d.HeightCm < 100 || d.HeightCm > 250:
		return fmt.Errorf("%w: height %.1fcm outside 100-250", ErrInvalidDemographics, d.HeightCm)
	case d.WeightKg < 30 || d.WeightKg > 200:
		return fmt.Errorf("%w: weight %.1fkg outside 30-200", ErrInvalidDemographics, d.WeightKg)
	}
	switch d.Sex {
	case SexMale, SexFemale, SexPreferNotToSay:
		return nil
	}
	return fmt.Errorf("%w: sex %q", ErrInvalidDemographics, d.Sex)
}

// BMI rounded to one decimal.
func (d Demographics) BMI() float64 {
	m := d.HeightCm / 100
	if m <= 0 {
		return 0
	}
	return math.Round(d.WeightKg/(m*m)*10) / 10
}

func (d Demographics) AgeCode() string {
	switch {
	case d.Age >= 60:
		return "age_gte_60"
	case d.Age >= 50:
		return "age_gte_50"
	case d.Age >= 40:
		return "age_40s"
	case d.Age >= 30:
		return "age_30s"
	case d.Age >= 20:
		return "age_20s"
	default:
		return "age_teens"
	}
}

func (d Demographics) BMICode() string {
	bmi := d.BMI()
	switch {
	case bmi >= 30:
		return "bmi_gte_30"
	case bmi >= 27:
		return "bmi_gte_27"
	case bmi >= 25:
		return "bmi_gte_25"
	default:
		return "bmi_normal"
	}
}

func (d Demographics) SexCode() string { return "sex_" + d.Sex }

// SymptomCodes returns the sex, age and BMI codes.
func (d Demographics) SymptomCodes() []string {
	return []string{d.SexCode(), d.AgeCode(), d.BMICode()}
}
