package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

const maxErrorHeaderLen = 500

// RetryCount reads x-retry-count from a delivery's headers, defaulting to
// zero. Brokers and clients disagree on the integer width, so every
// numeric AMQP type is accepted.
func RetryCount(headers amqp.Table) int {
	if headers == nil {
		return 0
	}
	v, ok := headers[HeaderRetryCount]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float32:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// LastError reads x-last-error from a delivery's headers.
func LastError(headers amqp.Table) string {
	if headers == nil {
		return ""
	}
	if s, ok := headers[HeaderLastError].(string); ok {
		return s
	}
	return ""
}

// TruncateError caps an error string to the dead-letter header limit.
func TruncateError(msg string) string {
	if len(msg) > maxErrorHeaderLen {
		return msg[:maxErrorHeaderLen]
	}
	return msg
}
