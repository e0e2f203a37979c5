// Package logger provides the structured JSON logging facade used across the
// service. Every entry carries an event name plus arbitrary key/value fields.
package logger

import (
	"log/slog"
	"os"
)

var log *slog.Logger

func Init() {
	log = slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func logger() *slog.Logger {
	if log == nil {
		Init()
	}
	return log
}

func Info(event string, fields map[string]interface{}) {
	logger().Info(event, attrs(fields)...)
}

func Warn(event string, fields map[string]interface{}) {
	logger().Warn(event, attrs(fields)...)
}

func Error(event string, err error, fields map[string]interface{}) {
	args := attrs(fields)
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	logger().Error(event, args...)
}

func InfoWithUser(userID, event string, fields map[string]interface{}) {
	args := append(attrs(fields), slog.String("user_id", userID))
	logger().Info(event, args...)
}

func WarnWithUser(userID, event string, fields map[string]interface{}) {
	args := append(attrs(fields), slog.String("user_id", userID))
	logger().Warn(event, args...)
}

func attrs(fields map[string]interface{}) []any {
	args := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		args = append(args, slog.Any(key, value))
	}
	return args
}
