package scan

import "time"

// Clock supplies tick timestamps. Readings must be monotonic.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now, which carries a monotonic reading
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
