package spindle

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorf_WrapsCause(t *testing.T) {
	t.Parallel()

	err := Errorf(KindHTTP, "fetch failed: %w", io.ErrUnexpectedEOF)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Equal(t, "[http] fetch failed: unexpected EOF", err.Error())
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"direct", Errorf(KindDataset, "push failed"), KindDataset},
		{"wrapped", errors.Join(errors.New("outer"), Errorf(KindBackend, "connect")), KindBackend},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"plain", errors.New("plain"), KindOther},
		{"nil", nil, KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	require.True(t, Retryable(Errorf(KindHTTP, "503")))
	require.True(t, Retryable(Errorf(KindTimeout, "deadline")))
	require.True(t, Retryable(Errorf(KindBackend, "no slot")))
	require.False(t, Retryable(Errorf(KindDataset, "disk full")))
	require.False(t, Retryable(Errorf(KindWorker, "panic")))
	require.False(t, Retryable(errors.New("unclassified")))

	// A fatal mark wins over a retryable kind.
	require.False(t, Retryable(Errorf(KindHTTP, "404").AsFatal()))
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	require.False(t, IsFatal(Errorf(KindWorker, "oops")))
	require.True(t, IsFatal(Errorf(KindWorker, "oops").AsFatal()))
	require.False(t, IsFatal(errors.New("plain")))
}

func TestErrorKindString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "http", KindHTTP.String())
	require.Equal(t, "timeout", KindTimeout.String())
	require.Equal(t, "other", KindOther.String())
	require.Equal(t, "other", ErrorKind(99).String())
}
