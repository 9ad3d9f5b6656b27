package storage

import (
	"encoding/json"
	"math"
	"time"
)

// Time is a JSON encoded unix timestamp.
type Time int64

// Now returns the current time truncated to the second.
func Now() Time {
	return ToTime(time.Now())
}

// AsTime returns the time as UTC so its string value doesn't depend on the local time zone.
func (t Time) AsTime() time.Time {
	return time.Unix(int64(t), 0).UTC()
}

// ToTime converts a time.Time to a storage.Time.
func ToTime(v time.Time) Time {
	return Time(v.Unix())
}

// TimePtr converts an optional time.Time.
func TimePtr(v *time.Time) *Time {
	if v == nil {
		return nil
	}
	t := ToTime(*v)
	return &t
}

// IsZero reports whether t is the unix epoch.
func (t Time) IsZero() bool {
	return t == 0
}

// Before reports whether t is before u.
func (t Time) Before(u Time) bool {
	return t < u
}

// After reports whether t is after u.
func (t Time) After(u Time) bool {
	return t > u
}

// UnmarshalJSON decodes JSON numbers as unix timestamps, converting float64 to int64 by rounding.
func (t *Time) UnmarshalJSON(b []byte) error {
	var i int64
	if err := json.Unmarshal(b, &i); err == nil {
		*t = Time(i)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*t = Time(int64(math.Round(f)))
	return nil
}
