package ident

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	seqBits   = 32
	dayBits   = 5
	monthBits = 4
	yearBits  = 23

	dayShift   = seqBits
	monthShift = dayShift + dayBits
	yearShift  = monthShift + monthBits

	seqMask   = uint64(1)<<seqBits - 1
	dayMask   = uint64(1)<<dayBits - 1
	monthMask = uint64(1)<<monthBits - 1
	yearMask  = uint64(1)<<yearBits - 1
)

// Version is the transaction number and logical clock of the store. It packs a UTC
// calendar day with the sequence of the transaction within that day, so raw values
// order like (day, seq).
type Version uint64

// NewVersion packs the components.
func NewVersion(year, month, day int, seq uint32) (Version, error) {
	if year < 0 || uint64(year) > yearMask {
		return 0, fmt.Errorf("version year %d out of range", year)
	}
	if month < 1 || month > 12 {
		return 0, fmt.Errorf("version month %d out of range", month)
	}
	if day < 1 || day > 31 {
		return 0, fmt.Errorf("version day %d out of range", day)
	}
	v := uint64(year)<<yearShift | uint64(month)<<monthShift | uint64(day)<<dayShift | uint64(seq)
	return Version(v), nil
}

// VersionOf returns the version for seq on the UTC day of t.
func VersionOf(t time.Time, seq uint32) Version {
	u := t.UTC()
	v, err := NewVersion(u.Year(), int(u.Month()), u.Day(), seq)
	if err != nil {
		panic(err)
	}
	return v
}

// DayOf returns the packed day prefix (version with sequence 0) for the UTC day of t.
// The session layer keys its daily sequence on this value.
func DayOf(t time.Time) Version {
	return VersionOf(t, 0)
}

func (v Version) Year() int    { return int(uint64(v) >> yearShift & yearMask) }
func (v Version) Month() int   { return int(uint64(v) >> monthShift & monthMask) }
func (v Version) Day() int     { return int(uint64(v) >> dayShift & dayMask) }
func (v Version) Seq() uint32  { return uint32(uint64(v) & seqMask) }
func (v Version) IsZero() bool { return v == 0 }

// Date returns the UTC midnight of the version's day.
func (v Version) Date() time.Time {
	return time.Date(v.Year(), time.Month(v.Month()), v.Day(), 0, 0, 0, 0, time.UTC)
}

// String returns "YYYY:MM:DD:SEQ".
func (v Version) String() string {
	return fmt.Sprintf("%04d:%02d:%02d:%d", v.Year(), v.Month(), v.Day(), v.Seq())
}

// ParseVersion decodes the String form.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return 0, fmt.Errorf("parse version %q: want YYYY:MM:DD:SEQ", s)
	}
	var nums [4]uint64
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse version %q: %w", s, err)
		}
		nums[i] = n
	}
	if nums[3] > seqMask {
		return 0, fmt.Errorf("parse version %q: sequence out of range", s)
	}
	v, err := NewVersion(int(nums[0]), int(nums[1]), int(nums[2]), uint32(nums[3]))
	if err != nil {
		return 0, fmt.Errorf("parse version %q: %w", s, err)
	}
	return v, nil
}
