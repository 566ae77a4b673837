package remote

import "encoding/json"

// HourlyFactor is the resting bolus factor for one hour of the day.
type HourlyFactor struct {
	Hour        int     `json:"hour"`
	BolusFactor float64 `json:"bolusFactor"`
}

// CalorieFactors are the two global calorie parameters.
type CalorieFactors struct {
	UsualBeCalories            float64 `json:"usualBeCalories"`
	InsulinTypeCalorieCovering float64 `json:"insulinTypeCalorieCovering"`
}

// Fallback calorie factors, used when the backend has none stored yet.
const (
	FallbackUsualBeCalories            = 105.0
	FallbackInsulinTypeCalorieCovering = 200.0
)

// FallbackCalorieFactors returns the fallback calorie factors.
func FallbackCalorieFactors() CalorieFactors {
	return CalorieFactors{
		UsualBeCalories:            FallbackUsualBeCalories,
		InsulinTypeCalorieCovering: FallbackInsulinTypeCalorieCovering,
	}
}

// CalculationRequest is the JSON body for POST /api/calculate.
type CalculationRequest struct {
	MealCarbs                  float64 `json:"mealCarbs"`
	MealCalories               float64 `json:"mealCalories"`
	UsualBeCalories            float64 `json:"usualBeCalories"`
	InsulinTypeCalorieCovering float64 `json:"insulinTypeCalorieCovering"`
	CurrentHour                float64 `json:"currentHour"`
	CurrentMinute              float64 `json:"currentMinute"`
	MovementFactor             float64 `json:"movementFactor"`
	EnableDatabaseStorage      bool    `json:"enableDatabaseStorage"`
}

// CalculationResult is produced entirely by the backend. Raw holds the
// response body exactly as received and is the result; the typed fields are
// a best-effort view and stay zero when the backend sends another type.
type CalculationResult struct {
	MealCarbs                      float64 `json:"mealCarbs"`
	MealCalories                   float64 `json:"mealCalories"`
	UsualBeCalories                float64 `json:"usualBeCalories"`
	InsulinTypeCalorieCovering     float64 `json:"insulinTypeCalorieCovering"`
	CurrentHour                    float64 `json:"currentHour"`
	CurrentMinute                  float64 `json:"currentMinute"`
	UsualBolusFactor               float64 `json:"usualBolusFactor"`
	IntermediateLeanBeFactor       float64 `json:"intermediateLeanBeFactor"`
	IntermediatePureCarbBeFactor   float64 `json:"intermediatePureCarbBeFactor"`
	IntermediateBeSum              float64 `json:"intermediateBeSum"`
	IntermediateBeCalories         float64 `json:"intermediateBeCalories"`
	IntermediateFatProteinCalories float64 `json:"intermediateFatProteinCalories"`
	MethodCorrectBeFactor          float64 `json:"methodCorrectBeFactor"`
	MethodCalorieSurplus           float64 `json:"methodCalorieSurplus"`
	MethodDelayedCalorieBolus      float64 `json:"methodDelayedCalorieBolus"`
	MethodCorrectBolusSum          float64 `json:"methodCorrectBolusSum"`
	MethodFatProteinCalories       float64 `json:"methodFatProteinCalories"`
	MovementFactor                 float64 `json:"movementFactor"`
	FinalCorrectBolus              float64 `json:"finalCorrectBolus"`
	SelectedMethodName             string  `json:"selectedMethodName"`
	MethodExplanation              string  `json:"methodExplanation"`
	StatusMessage                  string  `json:"statusMessage"`
	DBStatus                       string  `json:"dbStatus"`

	Raw json.RawMessage `json:"-"`
}
