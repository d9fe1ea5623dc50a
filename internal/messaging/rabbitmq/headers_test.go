package rabbitmq

import (
	"strings"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

func TestRetryCountNumericWidths(t *testing.T) {
	cases := []struct {
		name string
		val  any
		want int
	}{
		{"int", int(3), 3},
		{"int8", int8(3), 3},
		{"int16", int16(3), 3},
		{"int32", int32(3), 3},
		{"int64", int64(3), 3},
		{"float32", float32(3), 3},
		{"float64", float64(3), 3},
		{"string is ignored", "3", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RetryCount(amqp.Table{HeaderRetryCount: tc.val})
			require.Equal(t, tc.want, got)
		})
	}
}

func TestRetryCountMissing(t *testing.T) {
	require.Equal(t, 0, RetryCount(nil))
	require.Equal(t, 0, RetryCount(amqp.Table{}))
}

func TestLastError(t *testing.T) {
	require.Equal(t, "", LastError(nil))
	require.Equal(t, "boom", LastError(amqp.Table{HeaderLastError: "boom"}))
	require.Equal(t, "", LastError(amqp.Table{HeaderLastError: 42}))
}

func TestTruncateError(t *testing.T) {
	require.Equal(t, "short", TruncateError("short"))

	long := strings.Repeat("x", 600)
	got := TruncateError(long)
	require.Len(t, got, 500)
}
