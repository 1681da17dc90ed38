package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorsRegistered(t *testing.T) {
	RemoteRequests.WithLabelValues("activity", "ok").Inc()
	SyncRuns.WithLabelValues("ok").Inc()
	RetryQueuePending.WithLabelValues("alice").Set(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(RemoteRequests.WithLabelValues("activity", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(SyncRuns.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(RetryQueuePending.WithLabelValues("alice")))
}

func TestMetricNames(t *testing.T) {
	problems, err := testutil.CollectAndLint(RecordsProcessed)
	assert.NoError(t, err)
	assert.Empty(t, problems)
}
