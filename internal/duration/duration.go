// Package duration converts subscription duration codes ("7d", "1m",
// "12m", "auto") into elapsed time.
package duration

import (
	"math"
	"regexp"
	"strconv"
	"time"
)

// Day is one calendar day in the duration table.
const Day = 24 * time.Hour

// Auto is the auto-renew pool code. It has no fixed expiry.
const Auto = "auto"

// MaxDays is the longest duration a valid code may stand for.
const MaxDays = 3650

// maxDurationDays is the most days a time.Duration can hold.
const maxDurationDays = int64(math.MaxInt64 / Day)

var (
	dayCode   = regexp.MustCompile(`^(\d+)d$`)
	monthCode = regexp.MustCompile(`^(\d+)m$`)
)

// Days returns the number of days a code stands for.
// "Nd" is N days, "Nm" is N*30 days except "12m" which is 365.
// Anything else, including "auto", is 0.
func Days(code string) int64 {
	if m := dayCode.FindStringSubmatch(code); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || n > math.MaxInt64/Day.Milliseconds() {
			return 0
		}
		return n
	}
	if m := monthCode.FindStringSubmatch(code); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0
		}
		if n == 12 {
			return 365
		}
		if n > math.MaxInt64/(30*Day.Milliseconds()) {
			return 0
		}
		return n * 30
	}
	return 0
}

// ElapsedMillis returns the elapsed time for code in milliseconds.
func ElapsedMillis(code string) int64 {
	return Days(code) * Day.Milliseconds()
}

// Elapsed returns the elapsed time for code, saturating at the largest
// time.Duration.
func Elapsed(code string) time.Duration {
	days := Days(code)
	if days > maxDurationDays {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(days) * Day
}

// ExpiresAt returns from plus Days(code) days, or nil when the code has no
// fixed expiry. Days are added on the calendar, so the result never wraps
// around for long codes.
func ExpiresAt(code string, from time.Time) *time.Time {
	days := Days(code)
	if days == 0 {
		return nil
	}
	if days > math.MaxInt32 {
		days = math.MaxInt32
	}
	t := from.AddDate(0, 0, int(days))
	return &t
}

// Valid reports whether code is "auto" or an Nd / Nm form between one day
// and MaxDays.
func Valid(code string) bool {
	if code == Auto {
		return true
	}
	days := Days(code)
	return days > 0 && days <= MaxDays
}
