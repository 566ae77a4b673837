package console

import (
	"encoding/json"

	"lazycarbs-console/internal/factors"
	"lazycarbs-console/internal/remote"
)

// CredentialRequest is the JSON body for PUT /api/credential.
type CredentialRequest struct {
	Value string `json:"value"`
}

// CredentialView is the JSON response for the credential endpoints.
type CredentialView struct {
	State  string `json:"state"`
	Valid  bool   `json:"valid"`
	Prompt bool   `json:"prompt"`
}

// EditRequest carries raw operator input exactly as typed.
type EditRequest struct {
	Value string `json:"value"`
}

// FieldEditRequest edits one named field.
type FieldEditRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// FactorsView lists every hour.
type FactorsView struct {
	Rows []factors.Row `json:"rows"`
}

// CaloriesView is the calorie editor state.
type CaloriesView struct {
	Working  remote.CalorieFactors `json:"working"`
	Baseline remote.CalorieFactors `json:"baseline"`
	Stored   bool                  `json:"stored"`
	Dirty    bool                  `json:"dirty"`
}

// WorkingFactors mirrors remote.CalorieFactors; a field the operator left
// unparsable is reported as null.
type WorkingFactors struct {
	UsualBeCalories            *float64 `json:"usualBeCalories"`
	InsulinTypeCalorieCovering *float64 `json:"insulinTypeCalorieCovering"`
}

// CalculatorView is the pipeline state.
type CalculatorView struct {
	State              string          `json:"state"`
	Working            WorkingFactors  `json:"working"`
	UsingFallback      bool            `json:"using_fallback"`
	UnavailableMessage string          `json:"unavailable_message,omitempty"`
	LastResult         json.RawMessage `json:"last_result,omitempty"`
}
