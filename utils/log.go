// Package utils provides utilities that is used in all sub-packages of ws_relay.
package utils

import (
	"flag"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	Log_debug = iota
	Log_info
	Log_warning
	Log_error //error一般用于输出一些 连接错误或者客户端协议错误之类的, 但不致命
	Log_fatal

	DefaultLL = Log_info
)

// LogLevel 值越小越唠叨, 废话越多，值越大打印的越少，见log_开头的常量;
var (
	LogLevel int

	// 如果给出了 LogFile, 则日志会同时输出到该文件, 并由 lumberjack 负责切割.
	LogFile string

	ZapLogger *zap.Logger
)

func init() {
	flag.IntVar(&LogLevel, "ll", DefaultLL, "log level,0=debug, 1=info, 2=warning, 3=error, 4=fatal")
	flag.StringVar(&LogFile, "lf", "", "log file path, empty means stdout only")

	//保证在 InitLog 之前调用 CanLogXxx 不会 nil panic, 比如 go test 里
	ZapLogger = zap.NewNop()
}

func logEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:  "msg",
		LevelKey:    "level",
		TimeKey:     "time",
		FunctionKey: "func",
		EncodeLevel: zapcore.CapitalColorLevelEncoder,
		EncodeTime:  zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000"),
		EncodeName:  zapcore.FullNameEncoder,
		LineEnding:  zapcore.DefaultLineEnding,
	}
}

// InitLog 按 LogLevel 和 LogFile 初始化 ZapLogger. 文件输出不带颜色.
func InitLog(firstMsg string) {
	//我们的loglevel就是zap的loglevel+1
	atomicLevel := zap.NewAtomicLevelAt(zapcore.Level(LogLevel - 1))

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(logEncoderConfig()), zapcore.AddSync(os.Stdout), atomicLevel),
	}

	if LogFile != "" {
		fileConf := logEncoderConfig()
		fileConf.EncodeLevel = zapcore.CapitalLevelEncoder

		rotator := &lumberjack.Logger{
			Filename:   LogFile,
			MaxSize:    32, //MB
			MaxBackups: 3,
			MaxAge:     14, //days
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(fileConf), zapcore.AddSync(rotator), atomicLevel))
	}

	ZapLogger = zap.New(zapcore.NewTee(cores...))

	if firstMsg != "" {
		ZapLogger.Info(firstMsg)
	}
}

func CanLogLevel(l int, msg string) *zapcore.CheckedEntry {
	return ZapLogger.Check(zapcore.Level(l-1), msg)
}

func canLogLevel(l zapcore.Level, msg string) *zapcore.CheckedEntry {
	return ZapLogger.Check(l, msg)
}

func CanLogErr(msg string) *zapcore.CheckedEntry {
	return canLogLevel(zap.ErrorLevel, msg)
}

func CanLogInfo(msg string) *zapcore.CheckedEntry {
	return canLogLevel(zap.InfoLevel, msg)
}

func CanLogWarn(msg string) *zapcore.CheckedEntry {
	return canLogLevel(zap.WarnLevel, msg)
}

func CanLogDebug(msg string) *zapcore.CheckedEntry {
	return canLogLevel(zap.DebugLevel, msg)
}

func CanLogFatal(msg string) *zapcore.CheckedEntry {
	return canLogLevel(zap.FatalLevel, msg)
}
