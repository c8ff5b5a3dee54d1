package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	Register(reg)

	AuthenticationTotal.WithLabelValues("test", OutcomeSuccess).Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(AuthenticationTotal.WithLabelValues("test", OutcomeSuccess)))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "ldapsecurity_authentication_total")
}
