package clock

import "time"

// Clock provides time.Now() access.
type Clock struct{}

// NowMillis returns current unix milliseconds.
func (Clock) NowMillis() int64 {
	return time.Now().UnixMilli()
}
