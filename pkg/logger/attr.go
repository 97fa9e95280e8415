package logger

import "log/slog"

// Error records err under "error". Nil errors produce an empty Attr, which
// slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

func Resource(name string) slog.Attr {
	return slog.String("resource", name)
}

func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}
