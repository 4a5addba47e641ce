package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-shop/logger"
)

func TestCollectorSamplesProbes(t *testing.T) {
	m := NewMemoryMetrics(logger.NewNop())
	c := NewCollector(context.Background(), logger.NewNop(), m, time.Hour)

	value := 3.0
	fail := false
	c.RegisterProbe("shop_products_total", func(context.Context) (float64, error) {
		if fail {
			return 0, errors.New("store down")
		}
		return value, nil
	})

	c.Collect()
	assert.Equal(t, 3.0, m.Gauge("shop_products_total", nil).Get())
	assert.Greater(t, m.Gauge("system_goroutines_count", nil).Get(), 0.0)

	value, fail = 9, true
	c.Collect()
	assert.Equal(t, 3.0, m.Gauge("shop_products_total", nil).Get())

	fail = false
	c.Collect()
	assert.Equal(t, 9.0, m.Gauge("shop_products_total", nil).Get())
}

func TestCollectorLifecycle(t *testing.T) {
	c := NewCollector(context.Background(), logger.NewNop(), NewMemoryMetrics(logger.NewNop()), time.Hour)

	require.NoError(t, c.Start())
	assert.True(t, c.IsRunning())
	assert.Error(t, c.Start())

	require.NoError(t, c.Stop())
	assert.False(t, c.IsRunning())
	assert.Error(t, c.Stop())
}
