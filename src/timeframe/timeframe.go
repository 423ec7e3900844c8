package timeframe

// Timeframe is a viewer-selected candle bucket length.
type Timeframe string

const (
	OneMinute      Timeframe = "1m"
	FifteenMinutes Timeframe = "15m"
	OneHour        Timeframe = "1h"
	OneDay         Timeframe = "1d"
	OneWeek        Timeframe = "1w"

	Default = OneMinute
)

// upstream kline interval per timeframe
var timeframeToInterval = map[Timeframe]string{
	OneMinute:      "1m",
	FifteenMinutes: "15m",
	OneHour:        "1h",
	OneDay:         "1d",
	OneWeek:        "1w",
}

var supported = []Timeframe{OneMinute, FifteenMinutes, OneHour, OneDay, OneWeek}

// Parse maps any token to a supported Timeframe. Unknown tokens yield Default.
func Parse(token string) Timeframe {
	tf := Timeframe(token)
	if _, ok := timeframeToInterval[tf]; ok {
		return tf
	}
	return Default
}

// IsSupported reports whether token names a supported timeframe as-is.
func IsSupported(token string) bool {
	_, ok := timeframeToInterval[Timeframe(token)]
	return ok
}

// Interval returns the upstream interval for t, falling back to the
// default interval for values that did not come from Parse.
func (t Timeframe) Interval() string {
	if interval, ok := timeframeToInterval[t]; ok {
		return interval
	}
	return timeframeToInterval[Default]
}

func (t Timeframe) String() string {
	return string(t)
}

// Supported lists the timeframes in ascending bucket length.
func Supported() []Timeframe {
	out := make([]Timeframe, len(supported))
	copy(out, supported)
	return out
}

// Intervals returns the upstream interval vocabulary.
func Intervals() []string {
	out := make([]string, 0, len(supported))
	for _, tf := range supported {
		out = append(out, timeframeToInterval[tf])
	}
	return out
}
