// Package timeutil converts timestamps to and from the float representation
// used by numeric trait columns.
//
// Values are stored as seconds since the Unix epoch with microsecond
// precision. Sub-microsecond components are dropped, and timestamps past
// roughly year 2100 may lose microseconds to float64 rounding.
package timeutil

import (
	"math"
	"time"
)

const microsPerSecond = 1e6

// ToFloat returns t as UTC seconds since the Unix epoch, fractional part
// carrying microseconds.
func ToFloat(t time.Time) float64 {
	t = t.UTC()
	micros := t.Nanosecond() / int(time.Microsecond)
	return float64(t.Unix()) + float64(micros)/microsPerSecond
}

// FromFloat reconstructs the UTC timestamp encoded by ToFloat.
func FromFloat(f float64) time.Time {
	sec := math.Floor(f)
	micros := math.Round((f - sec) * microsPerSecond)
	if micros >= microsPerSecond {
		sec++
		micros -= microsPerSecond
	}
	return time.Unix(int64(sec), int64(micros)*int64(time.Microsecond)).UTC()
}
