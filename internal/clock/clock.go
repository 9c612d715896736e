package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock returns the current time. Services take it so tests can pin time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// System returns the wall clock in UTC.
func System() Clock { return systemClock{} }

var Module = fx.Module("clock",
	fx.Provide(System),
)
