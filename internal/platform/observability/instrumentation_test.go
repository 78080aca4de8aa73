package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMetricAccumulates(t *testing.T) {
	_, err := Setup(context.Background(), Config{}, nil)
	require.NoError(t, err)

	RecordMetric(context.Background(), "detector.stage", 10, map[string]string{"mode": "live"})
	RecordMetric(context.Background(), "detector.stage", 40, map[string]string{"mode": "live"})
	RecordMetric(context.Background(), "detector.stage", 45, map[string]string{"mode": "simulated"})

	points := Snapshot()
	require.Len(t, points, 2)
	assert.Equal(t, "live", points[0].Labels["mode"])
	assert.Equal(t, int64(2), points[0].Count)
	assert.Equal(t, 50.0, points[0].Sum)
	assert.Equal(t, 40.0, points[0].Last)
	assert.Equal(t, int64(1), points[1].Count)
}

func TestStartSpanRecordsOutcome(t *testing.T) {
	_, err := Setup(context.Background(), Config{Enabled: false}, nil)
	require.NoError(t, err)

	_, end := StartSpan(context.Background(), "detector", "analyze")
	end(errors.New("boom"))
	_, end = StartSpan(context.Background(), "detector", "analyze")
	end(nil)

	var outcomes []string
	for _, p := range Snapshot() {
		if p.Name == "detector.duration_ms" {
			outcomes = append(outcomes, p.Labels["outcome"])
		}
	}
	assert.ElementsMatch(t, []string{"error", "ok"}, outcomes)
}

func TestSetupResetsCounters(t *testing.T) {
	RecordMetric(context.Background(), "leftover", 1, nil)
	_, err := Setup(context.Background(), Config{Enabled: true}, nil)
	require.NoError(t, err)

	assert.Empty(t, Snapshot())
	assert.True(t, Enabled())
}
