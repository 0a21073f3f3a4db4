// Package labels names the first element of each protocol message.
package labels

const (
	EVENT  = "EVENT"
	REQ    = "REQ"
	CLOSE  = "CLOSE"
	OK     = "OK"
	EOSE   = "EOSE"
	CLOSED = "CLOSED"
	NOTICE = "NOTICE"
	AUTH   = "AUTH"
	COUNT  = "COUNT"
)
