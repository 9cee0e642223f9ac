package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserversRecord(t *testing.T) {
	Init()
	Init() // idempotent

	ObserveDispatch("page", "continue", 120*time.Millisecond)
	ObserveRetry("page")
	ObserveRetry("page")
	ObserveFailure("page")
	ObserveFrontierPush()
	IncInFlight()
	IncInFlight()
	DecInFlight()

	require.Equal(t, float64(1), testutil.ToFloat64(dispatchTotal.WithLabelValues("page", "continue")))
	require.Equal(t, float64(2), testutil.ToFloat64(retriesTotal.WithLabelValues("page")))
	require.Equal(t, float64(1), testutil.ToFloat64(failuresTotal.WithLabelValues("page")))
	require.Equal(t, float64(1), testutil.ToFloat64(inFlightTasks))
}
