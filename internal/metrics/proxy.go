package metrics

import (
	"context"

	"github.com/krysearch/privacyfilters/proxy"
	"github.com/prometheus/client_golang/prometheus"
)

// Proxy is the Prometheus-based implementation of the [proxy.Metrics]
// interface.
type Proxy struct {
	requests *prometheus.CounterVec
}

// type check
var _ proxy.Metrics = (*Proxy)(nil)

// NewProxy registers the proxy metrics in reg and returns a properly
// initialized *Proxy.
func NewProxy(namespace string, reg prometheus.Registerer) (m *Proxy, err error) {
	const requests = "requests_total"

	m = &Proxy{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      requests,
			Namespace: namespace,
			Subsystem: subsystemProxy,
			Help:      "The number of proxied requests by type and filtering reason.",
		}, []string{"type", "reason"}),
	}

	err = register(reg, []namedCollector{{c: m.requests, name: requests}})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// IncrementRequests implements the [proxy.Metrics] interface for *Proxy.
func (m *Proxy) IncrementRequests(_ context.Context, t proxy.RequestType, r proxy.Reason) {
	m.requests.WithLabelValues(t.String(), r.String()).Inc()
}
