package utils

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig - параметры логирования
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json, text
	Output      string // stdout, stderr или путь к файлу
	Development bool

	// Ротация файла (только для файлового вывода)
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger - обёртка над zap с доменными хелперами
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitLogger создаёт логгер. Никогда не возвращает nil:
// при ошибке открытия файла пишет в stderr.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	if cfg.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.MillisDurationEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "text") || strings.EqualFold(cfg.Format, "console") {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, openOutput(cfg), zap.NewAtomicLevelAt(level))

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	l := zap.New(core, opts...)
	return &Logger{Logger: l, sugar: l.Sugar()}
}

func openOutput(cfg LogConfig) zapcore.WriteSyncer {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		return zapcore.Lock(os.Stdout)
	case "stderr":
		return zapcore.Lock(os.Stderr)
	}

	// Проверяем, что файл открывается, до передачи в lumberjack:
	// тот открывает файл лениво и ошибку мы бы не увидели
	f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: cannot open %s, falling back to stderr: %v\n", cfg.Output, err)
		return zapcore.Lock(os.Stderr)
	}

	info, err := f.Stat()
	if err == nil && !info.Mode().IsRegular() {
		// /dev/null и прочие устройства не ротируем
		return zapcore.Lock(f)
	}
	_ = f.Close()

	rotator := &lumberjack.Logger{
		Filename:   cfg.Output,
		MaxSize:    valueOr(cfg.MaxSizeMB, 100),
		MaxBackups: valueOr(cfg.MaxBackups, 5),
		MaxAge:     valueOr(cfg.MaxAgeDays, 28),
		Compress:   true,
	}
	return zapcore.AddSync(rotator)
}

func valueOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ============================================================
// Глобальный логгер
// ============================================================

// GetGlobalLogger возвращает глобальный логгер, создавая его по умолчанию
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{Level: "info", Format: "json"})
	}
	return globalLogger
}

// L - короткий алиас GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// InitGlobalLogger создаёт и устанавливает глобальный логгер
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger подменяет глобальный логгер (удобно в тестах)
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// NewNopLogger - логгер, который ничего не пишет
func NewNopLogger() *Logger {
	l := zap.NewNop()
	return &Logger{Logger: l, sugar: l.Sugar()}
}

// ============================================================
// Методы Logger
// ============================================================

// With возвращает дочерний логгер с полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{Logger: child, sugar: child.Sugar()}
}

// WithComponent помечает логгер компонентом (processor, rate_updater, api)
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Component(name))
}

// WithExchangeID привязывает логгер к заявке
func (l *Logger) WithExchangeID(id string) *Logger {
	return l.With(ExchangeID(id))
}

// WithWalletID привязывает логгер к кошельку
func (l *Logger) WithWalletID(id string) *Logger {
	return l.With(WalletID(id))
}

// WithPair привязывает логгер к валютной паре
func (l *Logger) WithPair(pair string) *Logger {
	return l.With(Pair(pair))
}

// Sugar возвращает SugaredLogger для printf-стиля
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============================================================
// Глобальные функции логирования
// ============================================================

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

func Debugf(format string, args ...interface{}) { L().sugar.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { L().sugar.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { L().sugar.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { L().sugar.Errorf(format, args...) }

// ============================================================
// Конструкторы доменных полей
// ============================================================

func ExchangeID(id string) zap.Field      { return zap.String("exchange_id", id) }
func WalletID(id string) zap.Field        { return zap.String("wallet_id", id) }
func UserID(id string) zap.Field          { return zap.String("user_id", id) }
func Currency(code string) zap.Field      { return zap.String("currency", code) }
func Pair(pair string) zap.Field          { return zap.String("pair", pair) }
func Symbol(symbol string) zap.Field      { return zap.String("symbol", symbol) }
func Address(addr string) zap.Field       { return zap.String("address", addr) }
func TxID(id string) zap.Field            { return zap.String("tx_id", id) }
func Sweep(name string) zap.Field         { return zap.String("sweep", name) }
func Outcome(kind string) zap.Field       { return zap.String("outcome", kind) }
func State(state string) zap.Field        { return zap.String("state", state) }
func RequestID(id string) zap.Field       { return zap.String("request_id", id) }
func Component(name string) zap.Field     { return zap.String("component", name) }
func Amount(v decimal.Decimal) zap.Field  { return zap.Stringer("amount", v) }
func Balance(v decimal.Decimal) zap.Field { return zap.Stringer("balance", v) }
func Rate(v decimal.Decimal) zap.Field    { return zap.Stringer("rate", v) }
func Latency(ms float64) zap.Field        { return zap.Float64("latency_ms", ms) }
func Elapsed(d time.Duration) zap.Field   { return zap.Duration("elapsed", d) }

// Переэкспорт частых конструкторов zap
var (
	String  = zap.String
	Int     = zap.Int
	Int64   = zap.Int64
	Float64 = zap.Float64
	Bool    = zap.Bool
	Err     = zap.Error
	Any     = zap.Any
)
