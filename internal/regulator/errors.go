package regulator

import "errors"

var (
	ErrNonPositiveThermalParameter = errors.New("thermal parameters must be strictly positive")
	ErrInvalidHorizon              = errors.New("horizon needs at least one step and a positive dt")
	ErrInvertedBounds              = errors.New("control lower bound exceeds upper bound")
	ErrNegativeRateLimit           = errors.New("control rate limit must not be negative")
	ErrNegativeWeight              = errors.New("cost weights must not be negative")
	ErrInvalidComfortBand          = errors.New("comfort floor must not exceed comfort ceiling")
	ErrTargetOutsideBand           = errors.New("target temperature outside comfort band")
	ErrInvalidStrategy             = errors.New("invalid strategy")
	ErrEmptyTrajectory             = errors.New("exogenous trajectory is empty")
	ErrNoFreshReading              = errors.New("no fresh sensor reading available")
)
