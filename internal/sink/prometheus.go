package sink

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// #region config
// PrometheusConfig names the exported gauge.
type PrometheusConfig struct {
	Namespace string
	Subsystem string
	// Registry defaults to prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
	// ConstLabels are attached to every series, e.g. {"run_id": id}.
	ConstLabels prometheus.Labels
}

// DefaultPrometheusConfig exports trainwatch_metric_value{metric=...}.
func DefaultPrometheusConfig() PrometheusConfig {
	return PrometheusConfig{Namespace: "trainwatch"}
}
// #endregion config

// #region sink
// Prometheus exposes the latest value of every logged name as a gauge
// labelled by metric name.
type Prometheus struct {
	values *prometheus.GaugeVec
	logged *prometheus.CounterVec
}

// NewPrometheus registers the collectors on cfg.Registry.
func NewPrometheus(cfg PrometheusConfig) (*Prometheus, error) {
	if cfg.Namespace == "" {
		return nil, errors.New("prometheus sink: namespace is required")
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &Prometheus{
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "metric_value",
			Help:        "Latest value logged by the training run, by metric name.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"metric"}),
		logged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "metric_logged_total",
			Help:        "Number of values logged by the training run, by metric name.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"metric"}),
	}
	for _, c := range []prometheus.Collector{p.values, p.logged} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prometheus sink: register: %w", err)
		}
	}
	return p, nil
}

func (p *Prometheus) Log(name string, value float64) {
	p.values.WithLabelValues(name).Set(value)
	p.logged.WithLabelValues(name).Inc()
}
// #endregion sink
