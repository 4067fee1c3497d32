package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"liraexchange/pkg/ratelimit"
)

// Отказы в допуске прохода. Все три - мягкий пропуск, не ошибка.
var (
	ErrConcurrencyLimit = errors.New("concurrency limit reached")
	ErrPassTooSoon      = fmt.Errorf("%w: previous pass started too recently", ErrConcurrencyLimit)
	ErrCooldown         = fmt.Errorf("%w: cooling down after consecutive errors", ErrConcurrencyLimit)
)

// Policy - ограничения нагрузки на внешние системы
type Policy struct {
	MaxConcurrentPasses int64
	MinPassInterval     time.Duration // между стартами проходов
	ItemDelay           time.Duration // между заявками внутри прохода, 0 - без паузы
	ErrorThreshold      int           // ошибок подряд до паузы
	Cooldown            time.Duration
}

// DefaultPolicy - один проход, не чаще раза в 10s, заявка в секунду, пауза 5m после 5 ошибок
func DefaultPolicy() Policy {
	return Policy{
		MaxConcurrentPasses: 1,
		MinPassInterval:     10 * time.Second,
		ItemDelay:           time.Second,
		ErrorThreshold:      5,
		Cooldown:            5 * time.Minute,
	}
}

// GovernorState - счётчик ошибок подряд и конец паузы
type GovernorState struct {
	ConsecutiveErrors int
	CooldownUntil     time.Time
}

// CoolingDown - пауза ещё не истекла
func (s GovernorState) CoolingDown(now time.Time) bool {
	return now.Before(s.CooldownUntil)
}

// nextState - чистая функция учёта исходов:
// Ok сбрасывает счётчик, Wait его не меняет, Retryable и Fatal увеличивают.
// На пороге включается пауза и счётчик обнуляется.
func nextState(s GovernorState, kind OutcomeKind, now time.Time, p Policy) GovernorState {
	switch kind {
	case OutcomeOk:
		s.ConsecutiveErrors = 0
	case OutcomeWait:
	default:
		s.ConsecutiveErrors++
	}

	if p.ErrorThreshold > 0 && s.ConsecutiveErrors >= p.ErrorThreshold {
		s.CooldownUntil = now.Add(p.Cooldown)
		s.ConsecutiveErrors = 0
	}
	return s
}

// Governor допускает проходы обработчика и выдерживает паузы между заявками
type Governor struct {
	policy  Policy
	sem     *semaphore.Weighted
	limiter *ratelimit.RateLimiter

	mu            sync.Mutex
	state         GovernorState
	lastPassStart time.Time

	now func() time.Time
}

// NewGovernor создаёт governor. Нулевые поля политики заменяются безопасными значениями.
func NewGovernor(p Policy) *Governor {
	if p.MaxConcurrentPasses < 1 {
		p.MaxConcurrentPasses = 1
	}
	return &Governor{
		policy:  p,
		sem:     semaphore.NewWeighted(p.MaxConcurrentPasses),
		limiter: ratelimit.NewIntervalLimiter(p.ItemDelay),
		now:     time.Now,
	}
}

// Admit пытается начать проход. Возвращённую release нужно вызвать по окончании.
func (g *Governor) Admit() (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.state.CoolingDown(now) {
		return nil, ErrCooldown
	}
	if !g.lastPassStart.IsZero() && now.Sub(g.lastPassStart) < g.policy.MinPassInterval {
		return nil, ErrPassTooSoon
	}
	if !g.sem.TryAcquire(1) {
		return nil, ErrConcurrencyLimit
	}

	g.lastPassStart = now
	var once sync.Once
	return func() { once.Do(func() { g.sem.Release(1) }) }, nil
}

// WaitItem ждёт очереди для следующей заявки. Во время паузы проход останавливается.
func (g *Governor) WaitItem(ctx context.Context) error {
	if g.CoolingDown() {
		return ErrCooldown
	}
	return g.limiter.Wait(ctx)
}

// Record учитывает исход заявки и сообщает, началась ли пауза
func (g *Governor) Record(kind OutcomeKind) (cooldownStarted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	wasCooling := g.state.CoolingDown(now)
	g.state = nextState(g.state, kind, now, g.policy)
	return !wasCooling && g.state.CoolingDown(now)
}

// CoolingDown - действует пауза после серии ошибок
func (g *Governor) CoolingDown() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.CoolingDown(g.now())
}

// State - снимок состояния для логов и тестов
func (g *Governor) State() GovernorState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
