package entities

import "time"

// Stamp is one instant as the server saw it on receipt and, when the
// participant surface reports it, as the surface's own monotonic clock saw
// it. Client is zero when nothing was reported.
type Stamp struct {
	Server time.Time `json:"server" bson:"server"`
	Client time.Time `json:"client,omitempty" bson:"client,omitempty"`
}

// ServerStamp is a stamp known to the server only
func ServerStamp(at time.Time) Stamp {
	return Stamp{Server: at}
}

// HasClient reports whether the participant surface timed this instant
func (s Stamp) HasClient() bool {
	return !s.Client.IsZero()
}

// IsZero reports whether the stamp is unset
func (s Stamp) IsZero() bool {
	return s.Server.IsZero() && s.Client.IsZero()
}

// Since measures from start to s on a single clock: the client clock when
// both ends carry it, the server clock otherwise.
func (s Stamp) Since(start Stamp) ReactionTime {
	if s.HasClient() && start.HasClient() {
		return Elapsed(start.Client, s.Client)
	}
	return Elapsed(start.Server, s.Server)
}

// sameClock names the clock Since uses for the pair
func sameClock(start, end Stamp) string {
	if start.HasClient() && end.HasClient() {
		return ClockClient
	}
	return ClockServer
}
