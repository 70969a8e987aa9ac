package infra

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the entitlement core. All
// methods are nil-safe so services can be built without metrics in tests.
type Metrics struct {
	asignaciones      *prometheus.CounterVec
	asignacionLatency *prometheus.HistogramVec
	compras           *prometheus.CounterVec
	circuito          *prometheus.GaugeVec
	sinAsignar        prometheus.Gauge
}

// NewMetrics registers the collectors on reg (DefaultRegisterer when nil).
// Collectors already registered under the same name are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		asignaciones: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinica",
			Subsystem: "paquetes",
			Name:      "asignaciones_total",
			Help:      "Entitlement assignment attempts by strategy and outcome.",
		}, []string{"estrategia", "resultado"}),
		asignacionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinica",
			Subsystem: "paquetes",
			Name:      "asignacion_duracion_segundos",
			Help:      "Time spent assigning one entitlement.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"estrategia"}),
		compras: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinica",
			Subsystem: "paquetes",
			Name:      "compras_total",
			Help:      "Purchase workflow events (registrada, validada, rechazada, cancelada).",
		}, []string{"evento"}),
		circuito: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "clinica",
			Subsystem: "paquetes",
			Name:      "circuit_breaker_estado",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"nombre"}),
		sinAsignar: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinica",
			Subsystem: "paquetes",
			Name:      "compras_validadas_sin_asignar",
			Help:      "Validated purchases whose automatic assignment has not completed.",
		}),
	}

	var err error
	if m.asignaciones, err = register(reg, m.asignaciones); err != nil {
		return nil, err
	}
	if m.asignacionLatency, err = register(reg, m.asignacionLatency); err != nil {
		return nil, err
	}
	if m.compras, err = register(reg, m.compras); err != nil {
		return nil, err
	}
	if m.circuito, err = register(reg, m.circuito); err != nil {
		return nil, err
	}
	if m.sinAsignar, err = register(reg, m.sinAsignar); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) ObserveAsignacion(estrategia, resultado string, d time.Duration) {
	if m == nil {
		return
	}
	m.asignaciones.WithLabelValues(estrategia, resultado).Inc()
	m.asignacionLatency.WithLabelValues(estrategia).Observe(d.Seconds())
}

func (m *Metrics) IncCompra(evento string) {
	if m == nil {
		return
	}
	m.compras.WithLabelValues(evento).Inc()
}

// OnCircuitChange matches CircuitBreakerConfig.OnStateChange.
func (m *Metrics) OnCircuitChange(nombre string, _, to CBState) {
	if m == nil {
		return
	}
	m.circuito.WithLabelValues(nombre).Set(float64(to))
}

func (m *Metrics) SetComprasSinAsignar(n int64) {
	if m == nil {
		return
	}
	m.sinAsignar.Set(float64(n))
}
