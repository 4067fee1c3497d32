// Package ratelimit - паузы между обращениями к блокчейну и рыночному API
// поверх golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter - token bucket из x/time/rate.
//
// Отличие от rate.Limiter.Wait: ожидание прерывается только отменой контекста,
// а не заранее по дедлайну, и возвращает ctx.Err().
//
//	limiter := NewIntervalLimiter(time.Second) // не чаще раза в секунду
//	if err := limiter.Wait(ctx); err != nil { ... }
type RateLimiter struct {
	lim *rate.Limiter
}

// NewRateLimiter создаёт limiter на r токенов/сек с ёмкостью burst
func NewRateLimiter(r float64, burst int) *RateLimiter {
	if r <= 0 {
		r = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{lim: rate.NewLimiter(rate.Limit(r), burst)}
}

// NewIntervalLimiter - один токен на interval, без всплесков.
// interval <= 0 означает отсутствие ограничения.
func NewIntervalLimiter(interval time.Duration) *RateLimiter {
	if interval <= 0 {
		return nil
	}
	return &RateLimiter{lim: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait блокирует до получения токена или отмены контекста.
// nil-limiter не ограничивает.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r := rl.lim.Reserve()
	delay := r.Delay()
	if delay == 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// Allow забирает токен без ожидания
func (rl *RateLimiter) Allow() bool {
	if rl == nil {
		return true
	}
	return rl.lim.Allow()
}

// Tokens - текущее количество токенов
func (rl *RateLimiter) Tokens() float64 {
	return rl.lim.Tokens()
}

// SetRate меняет скорость на лету
func (rl *RateLimiter) SetRate(r float64) {
	if r <= 0 {
		return
	}
	rl.lim.SetLimit(rate.Limit(r))
}

// SetInterval - один токен на interval
func (rl *RateLimiter) SetInterval(interval time.Duration) {
	if interval <= 0 {
		rl.lim.SetLimit(rate.Inf)
		return
	}
	rl.lim.SetLimit(rate.Every(interval))
}

// SetBurst меняет ёмкость ведра
func (rl *RateLimiter) SetBurst(burst int) {
	if burst < 1 {
		return
	}
	rl.lim.SetBurst(burst)
}
