package mq

import (
	"math"
	"math/rand"
	"time"
)

// Backoff 指数退避策略：第 n 次尝试等待 min(base * multiplier^(n-1), cap)
type Backoff struct {
	// 基础等待时长
	Base time.Duration
	// 每次尝试的倍率，<= 0 时按 2 处理；1 表示固定间隔
	Multiplier float64
	// 等待时长上限
	Cap time.Duration
	// 是否加随机抖动（0.5x - 1.0x）
	Jitter bool
}

// Duration 计算第 attempt 次（从 1 开始）尝试后的等待时长
func (b Backoff) Duration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := b.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	d := float64(b.Base) * math.Pow(multiplier, float64(attempt-1))
	if b.Cap > 0 && d > float64(b.Cap) {
		d = float64(b.Cap)
	}

	if b.Jitter {
		d = d/2 + rand.Float64()*d/2
	}

	return time.Duration(d)
}
