package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := E(KindNotFound, "recipient missing")
	require.Equal(t, KindNotFound, KindOf(err))

	wrapped := fmt.Errorf("submit: %w", Wrap(KindTransport, "upstream down", errors.New("dial tcp")))
	require.Equal(t, KindTransport, KindOf(wrapped))

	require.Equal(t, KindInternal, KindOf(errors.New("plain")))
	require.Equal(t, KindInternal, KindOf(nil))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp 127.0.0.1:5672: connection refused")
	err := Wrap(KindBrokerUnavailable, "publish failed", cause)

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "BROKER_UNAVAILABLE")
	require.Contains(t, err.Error(), "connection refused")
}
