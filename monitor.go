package gitfs

import (
	"time"
)

/*
	Monitor carries the optional event channel that filesystems and
	their helpers report lifecycle events into.

	A zero Monitor is silent.  The channel is never closed by gitfs;
	whoever made it owns it.
*/
type Monitor struct {
	Chan chan<- Event
}

type Event struct {
	Log *Event_Log `refmt:"log,omitempty"`
}

type Event_Log struct {
	Time   time.Time   `refmt:"-"`
	Level  LogLevel    `refmt:"lvl"`
	Msg    string      `refmt:"msg"`
	Detail [][2]string `refmt:"detail,omitempty"`
}

type LogLevel int8

const (
	LogError = LogLevel(4)
	LogWarn  = LogLevel(3)
	LogInfo  = LogLevel(2)
	LogDebug = LogLevel(1)
)

func (l LogLevel) String() string {
	switch l {
	case LogError:
		return "error"
	case LogWarn:
		return "warn"
	case LogInfo:
		return "info"
	case LogDebug:
		return "debug"
	default:
		return "unknown"
	}
}
