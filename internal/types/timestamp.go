package types

import "time"

// Timestamp is a wall-clock instant split into whole seconds and
// microseconds, the resolution the scheduler does its arithmetic in.
type Timestamp struct {
	Sec  int64 `msgpack:"s" json:"sec"`
	Usec int64 `msgpack:"us" json:"usec"`
}

// TimestampOf truncates t to microsecond resolution.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp{Sec: t.Unix(), Usec: int64(t.Nanosecond() / 1000)}
}

// Time converts back to a time.Time in UTC.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Sec, ts.Usec*1000).UTC()
}

// IsZero reports whether the timestamp was never set.
func (ts Timestamp) IsZero() bool {
	return ts.Sec == 0 && ts.Usec == 0
}

// Millis is the timestamp in milliseconds.
func (ts Timestamp) Millis() int64 {
	return ts.Sec*1000 + ts.Usec/1000
}
