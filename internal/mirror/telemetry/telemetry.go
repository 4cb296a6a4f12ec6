// Package telemetry concentra os coletores Prometheus do espelho.
// Todos os métodos aceitam receptor nil, assim componentes sem métricas não precisam de checagem.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Merges        *prometheus.CounterVec
	Retired       prometheus.Counter
	Transactions  *prometheus.CounterVec
	Pending       prometheus.Gauge
	Orphaned      prometheus.Counter
	Submissions   *prometheus.CounterVec
	UpdatesIn     *prometheus.CounterVec
	RemoteFetches *prometheus.CounterVec
	ConsumeErrors *prometheus.CounterVec
}

// New cria os coletores e registra em reg (prometheus.DefaultRegisterer quando nil)
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_store_merges_total", Help: "merges de verdade remota por resultado",
		}, []string{"result"}),
		Retired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirror_overlay_retired_total", Help: "transações aposentadas pelo eco remoto",
		}),
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_transactions_total", Help: "transições de transação por estado",
		}, []string{"state"}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mirror_transactions_inflight", Help: "transações ainda em Submitted",
		}),
		Orphaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirror_overlay_orphaned_total", Help: "transações cujo eco não chegou a tempo",
		}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_submissions_total", Help: "submissões por ação e resultado",
		}, []string{"action", "result"}),
		UpdatesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_updates_consumed_total", Help: "atualizações remotas recebidas por origem",
		}, []string{"source"}),
		RemoteFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_remote_fetches_total", Help: "leituras diretas no indexador por resultado",
		}, []string{"result"}),
		ConsumeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_consumer_errors_total", Help: "erros do consumer Kafka por estágio",
		}, []string{"stage"}),
	}
	reg.MustRegister(m.Merges, m.Retired, m.Transactions, m.Pending, m.Orphaned,
		m.Submissions, m.UpdatesIn, m.RemoteFetches, m.ConsumeErrors)
	return m
}

// Merge conta um merge; stale indica leitura antiga descartada
func (m *Metrics) Merge(changed bool) {
	if m == nil {
		return
	}
	result := "applied"
	if !changed {
		result = "stale"
	}
	m.Merges.WithLabelValues(result).Inc()
}

func (m *Metrics) RetiredN(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Retired.Add(float64(n))
}

// Transition registra a entrada em um estado
func (m *Metrics) Transition(state string, terminal bool) {
	if m == nil {
		return
	}
	m.Transactions.WithLabelValues(state).Inc()
	if terminal {
		m.Pending.Dec()
	} else {
		m.Pending.Inc()
	}
}

func (m *Metrics) OrphanedN(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Orphaned.Add(float64(n))
}

func (m *Metrics) Submission(action string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.Submissions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) Update(source string) {
	if m == nil {
		return
	}
	m.UpdatesIn.WithLabelValues(source).Inc()
}

func (m *Metrics) Fetch(result string) {
	if m == nil {
		return
	}
	m.RemoteFetches.WithLabelValues(result).Inc()
}

func (m *Metrics) ConsumeError(stage string) {
	if m == nil {
		return
	}
	m.ConsumeErrors.WithLabelValues(stage).Inc()
}
