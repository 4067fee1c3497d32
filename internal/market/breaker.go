package market

import (
	"context"
	"errors"
	"time"

	"github.com/eapache/go-resiliency/breaker"
)

// ErrCircuitOpen - площадка недавно падала подряд, запросы временно не отправляются
var ErrCircuitOpen = errors.New("pricing circuit open")

// Guarded - PricingClient за circuit breaker.
//
// После errorThreshold ошибок подряд breaker открывается на timeout,
// за это время обновление курса сразу уходит в fallback.
type Guarded struct {
	next    PricingClient
	breaker *breaker.Breaker
}

// NewGuarded оборачивает клиент. errorThreshold <= 0 означает 3, timeout <= 0 - 1 минуту.
func NewGuarded(next PricingClient, errorThreshold int, timeout time.Duration) *Guarded {
	if errorThreshold <= 0 {
		errorThreshold = 3
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Guarded{
		next:    next,
		breaker: breaker.New(errorThreshold, 1, timeout),
	}
}

// GetTicker implements PricingClient
func (g *Guarded) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	var (
		ticker   *Ticker
		canceled error
	)
	err := g.breaker.Run(func() error {
		t, err := g.next.GetTicker(ctx, symbol)
		if err != nil {
			// Отмена контекста - не вина площадки
			if errors.Is(err, context.Canceled) {
				canceled = err
				return nil
			}
			return err
		}
		ticker = t
		return nil
	})
	if errors.Is(err, breaker.ErrBreakerOpen) {
		return nil, ErrCircuitOpen
	}
	if err != nil {
		return nil, err
	}
	if canceled != nil {
		return nil, canceled
	}
	return ticker, nil
}

var _ PricingClient = (*Guarded)(nil)
var _ PricingClient = (*Bybit)(nil)
