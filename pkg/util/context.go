package util

type ContextKey string

func (c ContextKey) String() string {
	return "k4llisto_" + string(c)
}

var ChannelContextKey ContextKey = "channel"
var RequestIDContextKey ContextKey = "request_id"
