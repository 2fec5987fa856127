package log

import "log/slog"

func RunID[T ~string](id T) slog.Attr {
	return slog.String("run_id", string(id))
}

func StepName[T ~string](name T) slog.Attr {
	return slog.String("step_name", string(name))
}

func ActionType[T ~string](typ T) slog.Attr {
	return slog.String("action_type", string(typ))
}

func Status[T ~string](status T) slog.Attr {
	return slog.String("status", string(status))
}

func Operation[T ~string](op T) slog.Attr {
	return slog.String("operation", string(op))
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
