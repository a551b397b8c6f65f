package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryCountersIncrement(t *testing.T) {
	r := New()
	r.EventsIn.WithLabelValues("Orders", "filter", "j1").Inc()
	r.EventsDropped.WithLabelValues("Orders", "saturated").Add(3)
	r.PipelineUtilization.WithLabelValues("Orders").Set(0.5)

	families, err := r.Gatherer().Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
