package flight

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Clock is a time of day with second resolution. The zero value is an unknown
// time, which is how folders without usable timestamps are represented.
type Clock struct {
	sec int
	set bool
}

// NewClock returns the time of day h:m:s.
func NewClock(h, m, s int) (Clock, error) {
	if h < 0 || h > 23 || m < 0 || m > 59 || s < 0 || s > 59 {
		return Clock{}, fmt.Errorf("invalid time of day %02d:%02d:%02d", h, m, s)
	}
	return Clock{sec: h*3600 + m*60 + s, set: true}, nil
}

// MustClock is NewClock for literals known to be valid.
func MustClock(h, m, s int) Clock {
	c, err := NewClock(h, m, s)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseClock parses an HHMMSS value. Log files store the value as an integer,
// so leading zeros may be missing ("83015" is 08:30:15) and are restored here.
// An empty string yields the unknown Clock.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Clock{}, nil
	}
	if len(s) > 6 {
		return Clock{}, fmt.Errorf("time %q is not in HHMMSS format", s)
	}
	if _, err := strconv.Atoi(s); err != nil {
		return Clock{}, fmt.Errorf("time %q is not in HHMMSS format", s)
	}
	s = strings.Repeat("0", 6-len(s)) + s

	h, _ := strconv.Atoi(s[0:2])
	m, _ := strconv.Atoi(s[2:4])
	sec, _ := strconv.Atoi(s[4:6])
	return NewClock(h, m, sec)
}

// IsSet reports whether the time of day is known.
func (c Clock) IsSet() bool {
	return c.set
}

// Seconds returns the number of seconds since midnight.
func (c Clock) Seconds() int {
	return c.sec
}

// Before reports whether c is earlier than o. Unknown times sort after every
// known time.
func (c Clock) Before(o Clock) bool {
	switch {
	case !c.set:
		return false
	case !o.set:
		return true
	}
	return c.sec < o.sec
}

// HHMMSS returns the integer encoding used by the flight log, e.g. 83015 for
// 08:30:15. Unknown times encode as -1.
func (c Clock) HHMMSS() int {
	if !c.set {
		return -1
	}
	return (c.sec/3600)*10000 + (c.sec%3600/60)*100 + c.sec%60
}

// Field returns the flight log column value. Unknown times are empty.
func (c Clock) Field() string {
	if !c.set {
		return ""
	}
	return strconv.Itoa(c.HHMMSS())
}

func (c Clock) String() string {
	if !c.set {
		return "--:--:--"
	}
	return fmt.Sprintf("%02d:%02d:%02d", c.sec/3600, c.sec%3600/60, c.sec%60)
}

// MinClock returns the earlier known time of a and b.
func MinClock(a, b Clock) Clock {
	if b.Before(a) {
		return b
	}
	return a
}

// MaxClock returns the later known time of a and b.
func MaxClock(a, b Clock) Clock {
	switch {
	case !a.set:
		return b
	case !b.set:
		return a
	case b.sec > a.sec:
		return b
	}
	return a
}

func (c Clock) MarshalJSON() ([]byte, error) {
	if !c.set {
		return []byte("null"), nil
	}
	return json.Marshal(c.HHMMSS())
}

func (c *Clock) UnmarshalJSON(p []byte) error {
	if string(p) == "null" {
		*c = Clock{}
		return nil
	}
	var v int
	if err := json.Unmarshal(p, &v); err != nil {
		return fmt.Errorf("decoding time of day: %w", err)
	}
	parsed, err := ParseClock(strconv.Itoa(v))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
