// Package metrics 定义引擎对外暴露的 Prometheus 指标。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bkapp_engine"

// Registry 独立于默认注册表，避免测试间相互污染。
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	RevisionsCreated = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "app_model_revisions_created_total",
		Help:      "Number of app model revisions created, by manager.",
	}, []string{"manager"})

	FieldOwnershipWrites = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "field_ownership_row_writes_total",
		Help:      "Number of managed-fields rows persisted, by manager.",
	}, []string{"manager"})

	FieldConflicts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "field_conflicts_total",
		Help:      "Number of field writes blocked by a higher-precedence owner.",
	}, []string{"manager", "owner"})

	IngressSyncs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingress_syncs_total",
		Help:      "Number of ingress sync operations, by kind and result.",
	}, []string{"kind", "result"})

	DeployTransitions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deploy_status_transitions_total",
		Help:      "Number of deploy status transitions, by target status.",
	}, []string{"status"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler 返回 /metrics 端点。
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
