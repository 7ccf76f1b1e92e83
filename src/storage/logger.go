package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Benylaode/Analisi-Udara/src/config"
)

// LogLevel 定义日志级别类型
type LogLevel int

// 日志级别常量定义
const (
	DEBUG   LogLevel = iota // 调试信息
	INFO                    // 普通信息
	WARNING                 // 警告信息
	ERROR                   // 错误信息
	FATAL                   // 致命错误(只记录，不退出进程)
)

// Logger 日志记录器：zap编码，写入文件并广播给订阅者
type Logger struct {
	mu       sync.Mutex
	file     *os.File
	filename string
	level    zap.AtomicLevel
	core     zapcore.Core

	subMu       sync.Mutex
	subscribers []chan string // 订阅者通道列表
}

// NewLogger 创建新的日志记录器
// 参数:
//
//	filename: 日志文件路径
//
// 返回值:
//
//	*Logger: 日志记录器实例
//	error: 创建过程中的错误
func NewLogger(filename string) (*Logger, error) {
	l := &Logger{level: zap.NewAtomicLevelAt(zapcore.DebugLevel)}
	if err := l.Reopen(filename); err != nil {
		return nil, err
	}
	return l, nil
}

// Nop 不输出任何内容的日志记录器
func Nop() *Logger {
	return &Logger{
		level: zap.NewAtomicLevelAt(zapcore.InvalidLevel),
		core:  zapcore.NewNopCore(),
	}
}

// SetLevel 调整最低输出级别
func (l *Logger) SetLevel(level LogLevel) {
	l.level.SetLevel(level.zapLevel())
}

// Close 关闭日志文件
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		_ = l.core.Sync()
		err := l.file.Close()
		l.file = nil
		l.core = zapcore.NewNopCore()
		return err
	}
	return nil
}

// Reopen 重新打开一个文件
// 参数：
// filename：新文件的路径
// 返回值：
// error：重建文件时的错误
func (l *Logger) Reopen(filename string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reopenLocked(filename)
}

// reopenLocked 调用方需持有 l.mu
func (l *Logger) reopenLocked(filename string) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	// 重新打开
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	// 关闭旧文件
	if l.file != nil {
		_ = l.file.Close()
	}

	l.file = file
	l.filename = filename
	l.core = l.buildCore(file)
	return nil
}

func (l *Logger) buildCore(file *os.File) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		MessageKey:       "message",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      encodeLevel,
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	return zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(file), l.level),
		zapcore.NewCore(encoder, zapcore.AddSync(fanout{l}), l.level),
	)
}

// Log 记录日志方法
// 参数:
//
//	level: 日志级别
//	message: 日志消息内容
//	fields: 结构化字段
func (l *Logger) Log(level LogLevel, message string, fields ...zap.Field) {
	// 写入期间持锁，轮转不会关掉正在写的文件
	l.mu.Lock()
	defer l.mu.Unlock()

	// 直接走core，FATAL不会触发zap的退出钩子
	entry := zapcore.Entry{Level: level.zapLevel(), Time: time.Now(), Message: message}
	if ce := l.core.Check(entry, nil); ce != nil {
		ce.Write(fields...)
	}
}

// CheckRotate 日志文件超过配置大小时轮转
func (l *Logger) CheckRotate(cfg *config.Config) error {
	l.mu.Lock()
	if l.file == nil {
		l.mu.Unlock()
		return nil
	}
	info, err := l.file.Stat()
	l.mu.Unlock()
	if err != nil {
		return err
	}

	if limit := eval(cfg.Log.MaxSize); limit > 0 && info.Size() > limit {
		return l.rotateLog()
	}
	return nil
}

// rotateLog 关闭、改名、重开在同一临界区内完成
func (l *Logger) rotateLog() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	filename := l.filename
	if l.file != nil {
		_ = l.core.Sync()
		l.file.Close()
		l.file = nil
		l.core = zapcore.NewNopCore()
		ext := filepath.Ext(filename)
		rotated := fmt.Sprintf("%s.%s%s", strings.TrimSuffix(filename, ext), time.Now().Format("20060102150405"), ext)
		if err := os.Rename(filename, rotated); err != nil {
			return err
		}
	}
	return l.reopenLocked(filename)
}

// Subscribe 订阅日志消息
// 返回值:
//
//	<-chan string: 只读通道，用于接收日志消息
func (l *Logger) Subscribe() <-chan string {
	l.subMu.Lock()
	defer l.subMu.Unlock()

	// 创建带缓冲的通道(容量100)
	ch := make(chan string, 100)
	// 将新通道加入订阅者列表
	l.subscribers = append(l.subscribers, ch)
	return ch
}

// fanout 把编码后的日志行广播给所有订阅者，通道满则跳过
type fanout struct {
	l *Logger
}

func (f fanout) Write(p []byte) (int, error) {
	entry := string(p)
	f.l.subMu.Lock()
	defer f.l.subMu.Unlock()
	for _, ch := range f.l.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
	return len(p), nil
}

// String 实现LogLevel的String方法
// 返回值:
//
//	string: 日志级别的字符串表示
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARNING:
		return "WARNING"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel 配置中的级别名转LogLevel，无法识别时为INFO
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARNING
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARNING:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func encodeLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.DebugLevel:
		enc.AppendString(DEBUG.String())
	case zapcore.WarnLevel:
		enc.AppendString(WARNING.String())
	case zapcore.ErrorLevel:
		enc.AppendString(ERROR.String())
	case zapcore.FatalLevel, zapcore.PanicLevel, zapcore.DPanicLevel:
		enc.AppendString(FATAL.String())
	default:
		enc.AppendString(INFO.String())
	}
}

// eval 计算形如 "10 * 1024 * 1024" 的大小表达式
func eval(expr string) int64 {
	if strings.TrimSpace(expr) == "" {
		return 0
	}
	parts := strings.Split(expr, "*")
	var result int64 = 1
	for _, part := range parts {
		num, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return 0
		}
		result *= num
	}
	return result
}

// 以下是快捷日志方法
func (l *Logger) Debug(msg string, fields ...zap.Field)   { l.Log(DEBUG, msg, fields...) }   // 记录调试信息
func (l *Logger) Info(msg string, fields ...zap.Field)    { l.Log(INFO, msg, fields...) }    // 记录普通信息
func (l *Logger) Warning(msg string, fields ...zap.Field) { l.Log(WARNING, msg, fields...) } // 记录警告信息
func (l *Logger) Error(msg string, fields ...zap.Field)   { l.Log(ERROR, msg, fields...) }   // 记录错误信息
func (l *Logger) Fatal(msg string, fields ...zap.Field)   { l.Log(FATAL, msg, fields...) }   // 记录致命错误
