package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/rpattn/entityindexer/internal/domain"
)

func TestObserveBlock(t *testing.T) {
	m := New()
	m.ObserveBlock(domain.BlockResult{
		BlockNumber: 42,
		Accepted:    1,
		Outcomes: []domain.Outcome{
			{EntityType: domain.EntityTypePlaylist, Action: domain.ActionCreate, Status: domain.OutcomeAccepted},
			{Status: domain.OutcomeMalformed},
		},
	}, time.Now())

	assert.Equal(t, 42.0, testutil.ToFloat64(m.lastIndexedBlock))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.blocksProcessed.WithLabelValues("committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("Playlist", "Create", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("unknown", "unknown", "malformed")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveBlock(domain.BlockResult{}, time.Now())
	m.ObserveFailedBlock(time.Now())
	m.ObservePublishFailure()
	assert.NotNil(t, m.Registry())
}
