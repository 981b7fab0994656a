package analytics

import (
	"fmt"
	"strings"
	"time"
)

// Interval is the user-facing chart granularity.
type Interval string

const (
	IntervalDays   Interval = "days"
	IntervalWeeks  Interval = "weeks"
	IntervalMonths Interval = "months"
)

// Device selects the shorter lookbacks used on small screens.
type Device string

const (
	DeviceDesktop Device = "desktop"
	DeviceMobile  Device = "mobile"
)

// ParseInterval resolves an interval class; empty defaults to days.
func ParseInterval(v string) (Interval, error) {
	switch i := Interval(strings.ToLower(strings.TrimSpace(v))); i {
	case "":
		return IntervalDays, nil
	case IntervalDays, IntervalWeeks, IntervalMonths:
		return i, nil
	default:
		return "", fmt.Errorf("unknown interval %q", v)
	}
}

// ParseDevice resolves a device class. Anything but "mobile" is desktop.
func ParseDevice(v string) Device {
	if strings.EqualFold(strings.TrimSpace(v), string(DeviceMobile)) {
		return DeviceMobile
	}
	return DeviceDesktop
}

// Mode maps the interval to its bucketing mode.
func (i Interval) Mode() Mode {
	switch i {
	case IntervalWeeks:
		return ModeWeek
	case IntervalMonths:
		return ModeMonth
	default:
		return ModeDay
	}
}

// RollingCutoff returns the earliest instant charted for interval on device.
func RollingCutoff(interval Interval, device Device, now time.Time) time.Time {
	mobile := device == DeviceMobile
	switch interval {
	case IntervalWeeks:
		if mobile {
			return now.AddDate(0, 0, -60)
		}
		return now.AddDate(0, 0, -90)
	case IntervalMonths:
		if mobile {
			return now.AddDate(0, -6, 0)
		}
		return now.AddDate(0, -12, 0)
	default:
		if mobile {
			return now.AddDate(0, 0, -14)
		}
		return now.AddDate(0, 0, -30)
	}
}

// RollingOptions builds bucketer options for a rolling chart window.
func RollingOptions(interval Interval, device Device, offsetMinutes int, now time.Time) BucketOptions {
	return BucketOptions{
		Mode:          interval.Mode(),
		OffsetMinutes: offsetMinutes,
		Cutoff:        RollingCutoff(interval, device, now),
	}
}
