/*
	Helper functions for emitting structured logs to the gitfs.Monitor.

	These functions encompass the common lifecycle events of a filesystem,
	and using them A) saves typing and B) keeps the common stuff formatted
	in a common way between the facade, the overlay, and the mount adapter.
	Callers can of course also write their own log events raw; it is freetext.
*/
package log

import (
	"fmt"
	"time"

	"go.polydawn.net/gitfs"
)

func emit(mon gitfs.Monitor, level gitfs.LogLevel, msg string, detail [][2]string) {
	if mon.Chan == nil {
		return
	}
	mon.Chan <- gitfs.Event{
		Log: &gitfs.Event_Log{
			Time:   time.Now(),
			Level:  level,
			Msg:    msg,
			Detail: detail,
		},
	}
}

func FilesystemOpened(mon gitfs.Monitor, identity string) {
	emit(mon, gitfs.LogInfo, "filesystem opened", [][2]string{
		{"identity", identity},
	})
}

// Typically called with nil; a non-nil err is the aggregate of release failures.
func FilesystemClosed(mon gitfs.Monitor, identity string, err error) {
	if err == nil {
		emit(mon, gitfs.LogInfo, "filesystem closed", [][2]string{
			{"identity", identity},
		})
		return
	}
	emit(mon, gitfs.LogWarn, fmt.Sprintf("filesystem closed with errors: %s", err), [][2]string{
		{"identity", identity},
		{"error", err.Error()},
	})
}

func RefMoved(mon gitfs.Monitor, ref string, from, to string) {
	emit(mon, gitfs.LogDebug, fmt.Sprintf("ref %s moved", ref), [][2]string{
		{"ref", ref},
		{"from", from},
		{"to", to},
	})
}

func RootAbsent(mon gitfs.Monitor, root string) {
	emit(mon, gitfs.LogDebug, fmt.Sprintf("root %s does not resolve", root), [][2]string{
		{"root", root},
	})
}

func HistoryBuilt(mon gitfs.Monitor, commits int, refs int, dateSource string) {
	emit(mon, gitfs.LogInfo, fmt.Sprintf("commit graph built: %d commits from %d refs", commits, refs), [][2]string{
		{"commits", fmt.Sprint(commits)},
		{"refs", fmt.Sprint(refs)},
		{"dateSource", dateSource},
	})
}

// Emitted once per observed date that reconciliation had to move.
func DatePatched(mon gitfs.Monitor, commit string, from, to time.Time) {
	emit(mon, gitfs.LogWarn, fmt.Sprintf("observed date of %s patched", commit), [][2]string{
		{"commit", commit},
		{"from", from.UTC().Format(time.RFC3339)},
		{"to", to.UTC().Format(time.RFC3339)},
	})
}

func HistoryFiltered(mon gitfs.Monitor, kept int, total int) {
	emit(mon, gitfs.LogInfo, fmt.Sprintf("commit graph filtered: kept %d of %d commits", kept, total), [][2]string{
		{"kept", fmt.Sprint(kept)},
		{"total", fmt.Sprint(total)},
	})
}

func MountError(mon gitfs.Monitor, op string, path string, err error) {
	emit(mon, gitfs.LogError, fmt.Sprintf("%s failed for %q: %s", op, path, err), [][2]string{
		{"op", op},
		{"path", path},
		{"error", err.Error()},
	})
}
