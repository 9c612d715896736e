package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/telemetry/pkg/timeutil"
)

// TraitType selects which value column of a trait is populated.
type TraitType int

const (
	TraitNone     TraitType = 0
	TraitText     TraitType = 1
	TraitInt      TraitType = 2
	TraitFloat    TraitType = 3
	TraitDatetime TraitType = 4
)

func (t TraitType) Valid() bool {
	return t >= TraitText && t <= TraitDatetime
}

func (t TraitType) String() string {
	switch t {
	case TraitText:
		return "text"
	case TraitInt:
		return "int"
	case TraitFloat:
		return "float"
	case TraitDatetime:
		return "datetime"
	default:
		return "none"
	}
}

// UnmarshalJSON accepts either the discriminator number or its name.
func (t *TraitType) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*t = TraitType(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTraitType, data)
	}
	parsed, err := ParseTraitType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTraitType accepts the lower-case names returned by String.
func ParseTraitType(s string) (TraitType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "string":
		return TraitText, nil
	case "int", "integer":
		return TraitInt, nil
	case "float":
		return TraitFloat, nil
	case "datetime", "timestamp":
		return TraitDatetime, nil
	default:
		return TraitNone, fmt.Errorf("%w: %q", ErrInvalidTraitType, s)
	}
}

// Value is a typed trait value. Its concrete type is one of TextValue,
// IntValue, FloatValue or TimeValue.
type Value interface {
	Type() TraitType
	Any() any
	apply(t *Trait)
}

type TextValue string

func (TextValue) Type() TraitType { return TraitText }
func (v TextValue) Any() any      { return string(v) }
func (v TextValue) apply(t *Trait) {
	s := string(v)
	t.String = &s
}

type IntValue int64

func (IntValue) Type() TraitType { return TraitInt }
func (v IntValue) Any() any      { return int64(v) }
func (v IntValue) apply(t *Trait) {
	i := int64(v)
	t.Int = &i
}

type FloatValue float64

func (FloatValue) Type() TraitType { return TraitFloat }
func (v FloatValue) Any() any      { return float64(v) }
func (v FloatValue) apply(t *Trait) {
	f := float64(v)
	t.Float = &f
}

// TimeValue is stored as seconds since the Unix epoch.
type TimeValue time.Time

func (TimeValue) Type() TraitType { return TraitDatetime }
func (v TimeValue) Any() any      { return time.Time(v).UTC() }
func (v TimeValue) apply(t *Trait) {
	f := timeutil.ToFloat(time.Time(v))
	t.Datetime = &f
}

// ValueFromAny checks that raw has the dynamic type selected by typ and
// wraps it. Integer kinds are widened to int64; float32 to float64.
func ValueFromAny(typ TraitType, raw any) (Value, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTraitType, typ)
	}
	if v, ok := raw.(Value); ok {
		if v.Type() != typ {
			return nil, mismatch(typ, raw)
		}
		return v, nil
	}

	switch typ {
	case TraitText:
		if s, ok := raw.(string); ok {
			return TextValue(s), nil
		}
	case TraitInt:
		switch n := raw.(type) {
		case int:
			return IntValue(n), nil
		case int8:
			return IntValue(n), nil
		case int16:
			return IntValue(n), nil
		case int32:
			return IntValue(n), nil
		case int64:
			return IntValue(n), nil
		case uint8:
			return IntValue(n), nil
		case uint16:
			return IntValue(n), nil
		case uint32:
			return IntValue(n), nil
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return IntValue(i), nil
			}
		}
	case TraitFloat:
		switch n := raw.(type) {
		case float64:
			return FloatValue(n), nil
		case float32:
			return FloatValue(n), nil
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return FloatValue(f), nil
			}
		}
	case TraitDatetime:
		if ts, ok := raw.(time.Time); ok {
			return TimeValue(ts), nil
		}
	}
	return nil, mismatch(typ, raw)
}

func mismatch(typ TraitType, raw any) error {
	return fmt.Errorf("%w: %s trait given %T", ErrTypeMismatch, typ, raw)
}

// NewTraitRecord maps a typed value onto the four-column layout.
func NewTraitRecord(id, nameID, eventID snowflake.ID, value Value) Trait {
	t := Trait{
		ID:      id,
		NameID:  nameID,
		EventID: eventID,
		Type:    value.Type(),
	}
	value.apply(&t)
	return t
}

// Decode reads the populated column back into a typed value.
func (t Trait) Decode() (Value, error) {
	populated := 0
	for _, set := range []bool{t.String != nil, t.Int != nil, t.Float != nil, t.Datetime != nil} {
		if set {
			populated++
		}
	}
	if populated != 1 {
		return nil, fmt.Errorf("%w: trait %s has %d value columns set", ErrCorruptTrait, t.ID, populated)
	}

	switch {
	case t.Type == TraitText && t.String != nil:
		return TextValue(*t.String), nil
	case t.Type == TraitInt && t.Int != nil:
		return IntValue(*t.Int), nil
	case t.Type == TraitFloat && t.Float != nil:
		return FloatValue(*t.Float), nil
	case t.Type == TraitDatetime && t.Datetime != nil:
		return TimeValue(timeutil.FromFloat(*t.Datetime)), nil
	default:
		return nil, fmt.Errorf("%w: trait %s column does not match type %s", ErrCorruptTrait, t.ID, t.Type)
	}
}
