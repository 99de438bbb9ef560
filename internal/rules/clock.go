package rules

import "github.com/jonboulle/clockwork"

// defaultClock is the time source for evaluators built without one.
var defaultClock = clockwork.NewRealClock()
