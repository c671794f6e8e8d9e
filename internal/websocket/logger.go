package websocket

import (
	"parley-chat/internal/events"
	"parley-chat/pkg/logger"

	"go.uber.org/zap"
)

// Logger provides structured logging for WebSocket events
type Logger struct {
	logger *zap.Logger
}

func NewLogger() *Logger {
	return &Logger{
		logger: logger.GetGlobalLogger().Logger.With(zap.String("component", "websocket")),
	}
}

func (l *Logger) Info(event string, userID int64, clientID string, fields ...zap.Field) {
	l.logger.Info("websocket_event", l.fields(event, userID, clientID, fields)...)
}

func (l *Logger) Warn(event string, userID int64, clientID string, fields ...zap.Field) {
	l.logger.Warn("websocket_warning", l.fields(event, userID, clientID, fields)...)
}

func (l *Logger) Error(event string, userID int64, clientID string, err error, fields ...zap.Field) {
	l.logger.Error("websocket_error", l.fields(event, userID, clientID, append(fields, zap.Error(err)))...)
}

func (l *Logger) fields(event string, userID int64, clientID string, extra []zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("event", event),
		zap.Int64("user_id", userID),
		zap.String("client_id", clientID),
	}, extra...)
}

func roomField(room events.Room) zap.Field {
	return zap.String("room", room.String())
}
