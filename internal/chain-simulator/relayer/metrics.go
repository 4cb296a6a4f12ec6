package relayer

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Executions *prometheus.CounterVec
	Published  prometheus.Counter
	Failures   prometheus.Counter
}

// NewMetrics registra os coletores do simulador em reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_executions_total", Help: "transações recebidas pelo relayer por status",
		}, []string{"status"}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_entity_updates_published_total", Help: "atualizações de entidade publicadas",
		}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_publish_failures_total", Help: "falhas ao publicar atualizações",
		}),
	}
	reg.MustRegister(m.Executions, m.Published, m.Failures)
	return m
}

func (m *Metrics) execution(status string) {
	if m != nil {
		m.Executions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) published(n int) {
	if m != nil {
		m.Published.Add(float64(n))
	}
}

func (m *Metrics) failure() {
	if m != nil {
		m.Failures.Inc()
	}
}
