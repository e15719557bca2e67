package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestConversationMetricsRegisterAndObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)

	m.ObserveMessage("deterministic", "initial")
	m.ObserveIntent("confirm", "direct")
	m.ObserveNLUFallback()
	m.ObserveOrderCreated()
	m.ObserveProcessing("delegated", 0.42)
	m.ObserveDeferredPersist()

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestCacheMetricsRegisterAndObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCacheMetrics(reg)

	m.ObserveHit("fast")
	m.ObserveHit("durable")
	m.ObserveMiss()
	m.ObserveFastTierError()
	m.SetWritebackDepth(3)

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilReceiversAreSafe(t *testing.T) {
	var cm *ConversationMetrics
	var cc *CacheMetrics

	assert.NotPanics(t, func() {
		cm.ObserveMessage("deterministic", "initial")
		cm.ObserveNLUFallback()
		cc.ObserveHit("fast")
		cc.SetWritebackDepth(1)
	})
}
