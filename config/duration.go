package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrNegativeDuration 时长为负
var ErrNegativeDuration = errors.New("config: negative duration")

// Duration 配置中的时长
//
// JSON 中可写为 "10s" 这样的字符串，也可写为毫秒数，与 *_ms 字段名对应：
//
//	{"request_timeout_ms": "10s"}
//	{"request_timeout_ms": 10000}
//
// 序列化时总是输出字符串。
type Duration time.Duration

// ParseDuration 解析字符串或十进制毫秒数
func ParseDuration(s string) (Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromMillis(ms)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s", ErrNegativeDuration, s)
	}
	return Duration(d), nil
}

func fromMillis(ms int64) (Duration, error) {
	if ms < 0 {
		return 0, fmt.Errorf("%w: %dms", ErrNegativeDuration, ms)
	}
	return Duration(time.Duration(ms) * time.Millisecond), nil
}

// UnmarshalJSON 实现 json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := ParseDuration(s)
		if err != nil {
			return err
		}
		*d = v
		return nil
	}

	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("duration must be a string like \"10s\" or milliseconds: %s", data)
	}
	v, err := fromMillis(ms)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MarshalJSON 实现 json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Set 实现 flag.Value
func (d *Duration) Set(s string) error {
	v, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Duration 返回 time.Duration
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }
