package a2a

import "time"

// Clock is injected by callers to timestamp TaskStatus and
// server-synthesized events (§6, §9). The default is the system clock.
type Clock func() time.Time

// SystemClock is the default Clock, backed by time.Now.
func SystemClock() time.Time { return time.Now().UTC() }

// FormatTimestamp renders t in the RFC3339 form used for TaskStatus.Timestamp.
func FormatTimestamp(t time.Time) string { return t.Format(time.RFC3339Nano) }
