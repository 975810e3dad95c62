package telraam

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// HourlyReport is one record of the upstream per-hour traffic report.
// Numeric metrics may be null when the upstream has no value for that hour,
// so everything except the date is a pointer. Date may arrive either as a
// plain YYYY-MM-DD with a separate hour field or as a full ISO timestamp;
// record-level normalization handles both.
type HourlyReport struct {
	Date       string   `json:"date"`
	Hour       *int     `json:"hour,omitempty"`
	Uptime     *float64 `json:"uptime" validate:"omitempty,gte=0,lte=1"`
	Heavy      *int     `json:"heavy" validate:"omitempty,gte=0"`
	Car        *int     `json:"car" validate:"omitempty,gte=0"`
	Bike       *int     `json:"bike" validate:"omitempty,gte=0"`
	Pedestrian *int     `json:"pedestrian" validate:"omitempty,gte=0"`
	V85        *float64 `json:"v85,omitempty"`
}

// trafficResponse is the envelope of POST /reports/traffic.
type trafficResponse struct {
	Report []HourlyReport `json:"report"`
}

var validate = validator.New()

// validateReports checks the decoded report list against the expected
// shape. A violation here means the upstream returned something we do not
// understand; it is never coerced into data.
func validateReports(reports []HourlyReport) error {
	for i := range reports {
		if err := validate.Struct(&reports[i]); err != nil {
			return err
		}
	}
	return nil
}

// FormatDateTime renders a timestamp in the upstream's wire format,
// e.g. "2025-01-31 23:59:59Z".
func FormatDateTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05") + "Z"
}
