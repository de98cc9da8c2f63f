package log

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Level = logrus.Level

const (
	ErrorLevel = logrus.ErrorLevel
	WarnLevel  = logrus.WarnLevel
	InfoLevel  = logrus.InfoLevel
	DebugLevel = logrus.DebugLevel
)

type Fields = logrus.Fields

var Logger *logrus.Logger

func init() {
	Logger = logrus.New()
	Logger.Out = os.Stderr
	Logger.Formatter = &logrus.TextFormatter{
		DisableLevelTruncation: true,
		PadLevelText:           true,
		TimestampFormat:        "2006/01/02 15:04:05",
		FullTimestamp:          true,
	}
}

// SetLevel sets the minimum level of the package logger.
func SetLevel(level Level) {
	Logger.SetLevel(level)
}

// ParseLevel maps LOG_LEVEL values to a level, defaulting to info.
func ParseLevel(s string) Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return InfoLevel
	}
	return lvl
}

func With(fields Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}

func Debugf(format string, args ...any) {
	Logger.Debugf(format, args...)
}

func Infof(format string, args ...any) {
	Logger.Infof(format, args...)
}

func Info(args ...any) {
	Logger.Infoln(args...)
}

func Warnf(format string, args ...any) {
	Logger.Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	Logger.Errorf(format, args...)
}

func Fatal(args ...any) {
	Logger.Fatalln(args...)
}
