package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"liraexchange/pkg/utils"
)

// loop - периодический запуск прохода на собственной горутине.
// Первый проход стартует сразу, дальше по тикеру.
type loop struct {
	name string
	log  *utils.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// start запускает цикл. Повторный старт без stop игнорируется.
func (l *loop) start(ctx context.Context, interval time.Duration, pass func(context.Context)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		return false
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.run(loopCtx, interval, pass, l.done)
	return true
}

func (l *loop) run(ctx context.Context, interval time.Duration, pass func(context.Context), done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.safePass(ctx, pass)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.safePass(ctx, pass)
		}
	}
}

// safePass выполняет проход. Отмена ctx означает остановку между заявками:
// проход сам отвязывает начатый ввод-вывод через context.WithoutCancel.
// Паника логируется и не покидает цикл.
func (l *loop) safePass(ctx context.Context, pass func(context.Context)) {
	if ctx.Err() != nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			l.log.Error("pass panicked",
				utils.Component(l.name),
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"),
			)
		}
	}()

	pass(ctx)
}

// stop останавливает цикл и ждёт завершения текущего прохода
func (l *loop) stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (l *loop) running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}
