package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type stubHistory struct {
	succeeded, failed int
}

func (s stubHistory) CountByResult() (int, int, error) {
	return s.succeeded, s.failed, nil
}

type stubContainers struct {
	ids []string
}

func (s stubContainers) ContainerIDs(context.Context) ([]string, error) {
	return s.ids, nil
}

func TestCollectorSamplesState(t *testing.T) {
	c := NewCollector(
		stubHistory{succeeded: 7, failed: 2},
		stubContainers{ids: []string{"a", "b", "c"}},
		time.Hour, // only the immediate collect matters here
	)
	c.collect()

	assert.Equal(t, 7.0, testutil.ToFloat64(RunsRecorded.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(RunsRecorded.WithLabelValues("failure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(ContainersActive))
}

func TestCollectorNilSources(t *testing.T) {
	c := NewCollector(nil, nil, time.Hour)
	// Must not panic with nothing wired.
	c.collect()
}

func TestCollectorStartStop(t *testing.T) {
	c := NewCollector(stubHistory{succeeded: 1}, stubContainers{}, 10*time.Millisecond)
	c.Start()
	time.Sleep(30 * time.Millisecond)
	c.Stop()

	assert.GreaterOrEqual(t, testutil.ToFloat64(RunsRecorded.WithLabelValues("success")), 1.0)
}
