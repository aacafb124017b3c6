package chrono

import (
	"time"
	// the portal timezone must resolve on hosts without zoneinfo
	_ "time/tzdata"
)

// API is an abstraction over the clock.
//
// note: fault injection point
type API interface {
	Now() time.Time
	Location() *time.Location
}

// StandardImpl reads the system clock in the timezone of the portal.
type StandardImpl struct {
	location *time.Location
}

func NewStandardImpl() (StandardImpl, error) {
	location, err := time.LoadLocation("Asia/Damascus")
	if err != nil {
		return StandardImpl{}, err
	}
	return StandardImpl{location: location}, nil
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// FixedImpl always returns the same time.
type FixedImpl struct {
	Time time.Time
}

func (f FixedImpl) Now() time.Time {
	return f.Time
}

func (f FixedImpl) Location() *time.Location {
	return f.Time.Location()
}
