package kad

import "errors"

// 默认参数
const (
	DefaultK     = 20
	DefaultAlpha = 3
	DefaultBeta  = 3

	// NumBuckets 桶数量
	NumBuckets = 256
)

// Config 路由表参数
type Config struct {
	// K 桶容量
	K int `json:"k"`
	// Alpha 递归查找并发度
	Alpha int `json:"alpha"`
	// Beta closest-N 查询额外纳入的相邻桶数
	Beta int `json:"beta"`
}

// DefaultConfig 返回默认参数
func DefaultConfig() Config {
	return Config{K: DefaultK, Alpha: DefaultAlpha, Beta: DefaultBeta}
}

// Validate 校验参数
func (c Config) Validate() error {
	if c.K <= 0 || c.K > 256 {
		return errors.New("kad: k must be in 1..256")
	}
	if c.Alpha <= 0 {
		return errors.New("kad: alpha must be positive")
	}
	if c.Beta < 0 {
		return errors.New("kad: beta must not be negative")
	}
	return nil
}
