package log

import (
	"github.com/sirupsen/logrus"
)

type Level logrus.Level

const (
	PanicLevel = Level(logrus.PanicLevel)
	FatalLevel = Level(logrus.FatalLevel)
	ErrorLevel = Level(logrus.ErrorLevel)
	WarnLevel  = Level(logrus.WarnLevel)
	InfoLevel  = Level(logrus.InfoLevel)
	DebugLevel = Level(logrus.DebugLevel)
	TraceLevel = Level(logrus.TraceLevel)
)

// Fields is a set of structured key/value pairs attached to a log entry.
type Fields = logrus.Fields

var Logger *logrus.Logger

func init() {
	Logger = logrus.New()
	Logger.Formatter = &logrus.TextFormatter{
		DisableLevelTruncation: true,
		PadLevelText:           true,
		TimestampFormat:        "2006/01/02 15:04:05",
		FullTimestamp:          true,
	}
}

func SetLevel(level Level) {
	Logger.SetLevel(logrus.Level(level))
}

// WithFields returns an entry that carries fields on every line it logs.
func WithFields(fields Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}

func Log(level Level, args ...any) {
	Logger.Logln(logrus.Level(level), args...)
}

func Debugf(fmt string, args ...any) {
	Logger.Debugf(fmt, args...)
}

func Infof(fmt string, args ...any) {
	Logger.Infof(fmt, args...)
}
func Info(args ...any) {
	Logger.Infoln(args...)
}

func Warnf(fmt string, args ...any) {
	Logger.Warnf(fmt, args...)
}

func Errorf(fmt string, args ...any) {
	Logger.Errorf(fmt, args...)
}

func Fatal(args ...any) {
	Logger.Fatalln(args...)
}
