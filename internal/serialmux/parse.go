package serialmux

import "strings"

// Reply kinds reported by a G-code controller.
const (
	ReplyAck     = "ack"
	ReplyError   = "error"
	ReplyBusy    = "busy"
	ReplyUnknown = "unknown"
)

// ClassifyReply inspects a controller line. Any line containing "ok" counts
// as an acknowledgement, matching firmware that appends position reports or
// line numbers to the ok token.
func ClassifyReply(line string) string {
	l := strings.ToLower(strings.TrimSpace(line))
	switch {
	case strings.Contains(l, "ok"):
		return ReplyAck
	case strings.HasPrefix(l, "error") || strings.HasPrefix(l, "!!"):
		return ReplyError
	case strings.Contains(l, "busy"):
		return ReplyBusy
	default:
		return ReplyUnknown
	}
}
