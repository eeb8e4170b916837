package models

// ForecastAPIRequest is the HTTP body for one ensemble request. StartTime is
// RFC3339 and optional; an empty value means "now, truncated to the minute".
type ForecastAPIRequest struct {
	Asset         string `json:"asset" validate:"required"`
	StartTime     string `json:"start_time"`
	TimeIncrement int64  `json:"time_increment" validate:"gt=0"`
	TimeLength    int64  `json:"time_length" validate:"gt=0"`
}

// ForecastAPIResponse is the wire form of one generated ensemble.
type ForecastAPIResponse struct {
	Asset         string      `json:"asset"`
	StartTime     string      `json:"start_time"`
	TimeIncrement int64       `json:"time_increment"`
	StepCount     int         `json:"steps"`
	StartPrice    float64     `json:"start_price"`
	Flattened     bool        `json:"flattened,omitempty"`
	GridTimes     []string    `json:"grid_times"`
	Paths         [][]float64 `json:"paths"`
}

// EligibilityAPIRequest queries the governance phase of one pair.
type EligibilityAPIRequest struct {
	Asset     string `query:"asset" validate:"required"`
	Parameter string `query:"parameter" validate:"required,oneof=lambda df sigma_cap_daily"`
}

// ProposeAPIRequest submits a parameter change for governance review.
type ProposeAPIRequest struct {
	Asset     string  `json:"asset" validate:"required"`
	Parameter string  `json:"parameter" validate:"required,oneof=lambda df sigma_cap_daily"`
	NewValue  float64 `json:"new_value" validate:"required"`
	Reason    string  `json:"reason" validate:"required,min=10"`
}
