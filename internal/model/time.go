package model

import (
	"fmt"
	"strings"
	"time"
)

// LocalTime is a custom time type to format time as "YYYY-MM-DD HH:MM:SS".
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

// NowLocalTime 返回当前时间的 LocalTime。
func NowLocalTime() LocalTime {
	return LocalTime(time.Now())
}

// ParseLocalTime 按固定格式解析时间字符串。
func ParseLocalTime(s string) (LocalTime, error) {
	t, err := time.ParseInLocation(timeFormat, s, time.Local)
	if err != nil {
		return LocalTime{}, err
	}
	return LocalTime(t), nil
}

// String 返回固定格式的时间字符串。
func (t LocalTime) String() string {
	return time.Time(t).Format(timeFormat)
}

// Before 按底层时间先后比较。
func (t LocalTime) Before(other LocalTime) bool {
	return time.Time(t).Before(time.Time(other))
}

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	formatted := fmt.Sprintf("\"%s\"", time.Time(t).Format(timeFormat))
	return []byte(formatted), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (t *LocalTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), "\"")
	if s == "" || s == "null" {
		*t = LocalTime{}
		return nil
	}
	parsed, err := time.ParseInLocation(timeFormat, s, time.Local)
	if err != nil {
		return err
	}
	*t = LocalTime(parsed)
	return nil
}
