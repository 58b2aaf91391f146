package invoice

import (
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DateFMT is the date layout used by the approval api
const DateFMT = "2006-01-02"

// Date is a calendar date encoded as "YYYY-MM-DD" in json and yaml
type Date struct {
	time.Time
}

// NewDate returns the Date for year, month and day
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// UnmarshalJSON unmarshals a "YYYY-MM-DD" date
func (d *Date) UnmarshalJSON(buf []byte) error {
	t, err := time.Parse(DateFMT, strings.Trim(string(buf), `"`))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// MarshalJSON marshals a Date to a "YYYY-MM-DD" string
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Time.Format(DateFMT) + `"`), nil
}

// UnmarshalYAML reads a "YYYY-MM-DD" scalar
func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	t, err := time.Parse(DateFMT, value.Value)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// MarshalYAML writes the date as a "YYYY-MM-DD" string
func (d Date) MarshalYAML() (interface{}, error) {
	return d.Time.Format(DateFMT), nil
}
