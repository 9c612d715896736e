package timeutil

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

var reference = time.Date(2012, 12, 21, 13, 34, 56, 120000000, time.UTC)

func TestToFloat(t *testing.T) {
	assert.InDelta(t, 1356093296.12, ToFloat(reference), 1e-6)
}

func TestToFloatIgnoresLocation(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*60*60)
	assert.Equal(t, ToFloat(reference), ToFloat(reference.In(loc)))
}

func TestFromFloat(t *testing.T) {
	got := FromFloat(1356093296.12)
	assert.True(t, reference.Equal(got), "expected %s, got %s", reference, got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestFromFloatWholeSeconds(t *testing.T) {
	assert.True(t, time.Unix(0, 0).Equal(FromFloat(0)))
	assert.True(t, time.Unix(1356093296, 0).Equal(FromFloat(1356093296)))
}

func TestFromFloatBeforeEpoch(t *testing.T) {
	want := time.Date(1969, 12, 31, 23, 59, 58, 500000000, time.UTC)
	assert.True(t, want.Equal(FromFloat(ToFloat(want))))
}

func TestSubMicrosecondIsDropped(t *testing.T) {
	in := reference.Add(789 * time.Nanosecond)
	assert.True(t, reference.Equal(FromFloat(ToFloat(in))))
}

func TestRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	start := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	end := time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC).Unix()

	properties.Property("FromFloat(ToFloat(t)) == t at microsecond precision", prop.ForAll(
		func(sec int64, micros int64) bool {
			in := time.Unix(sec, micros*int64(time.Microsecond)).UTC()
			return FromFloat(ToFloat(in)).Equal(in)
		},
		gen.Int64Range(start, end),
		gen.Int64Range(0, 999999),
	))

	properties.TestingRun(t)
}
