package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

var Logger = logrus.New()

type Settings struct {
	Json   bool
	Level  string
	Stdout bool
}

func InitLogger(s Settings) {
	if s.Json {
		Logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Logger.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: false,
			DisableColors:    true,
		})
	}
	if s.Stdout {
		Logger.SetOutput(os.Stdout)
	}
	if s.Level == "" {
		s.Level = "error"
	}
	if logLevel, err := logrus.ParseLevel(s.Level); err == nil {
		Logger.SetLevel(logLevel)
	} else {
		Logger.Error("Couldn't parse loglevel ", s.Level)
		Logger.SetLevel(logrus.ErrorLevel)
	}
	Logger.Info("init logging system")
}

func Info(args ...interface{}) {
	Logger.Info(args...)
}

func Error(args ...interface{}) {
	Logger.Error(args...)
}

func Debug(args ...interface{}) {
	Logger.Debug(args...)
}
