package tunnel

import (
	"github.com/e1732a364fed/ws_relay/netLayer"
	"github.com/prometheus/client_golang/prometheus"
)

// Stats 是 进程级别的 指标. nil 的 *Stats 可以安全使用.
type Stats struct {
	Sessions *prometheus.CounterVec
	Active   prometheus.Gauge
	Bytes    *prometheus.CounterVec
	Errors   *prometheus.CounterVec
}

// NewStats 创建指标 并注册到 reg; reg 为 nil 时 不注册.
func NewStats(reg prometheus.Registerer) *Stats {
	s := &Stats{
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ws_relay_sessions_total",
			Help: "Sessions that got past sniffing, by protocol tag.",
		}, []string{"tag"}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_relay_sessions_active",
			Help: "Sessions currently being processed.",
		}),
		Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ws_relay_bytes_total",
			Help: "Relayed payload bytes, by direction.",
		}, []string{"direction"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ws_relay_session_errors_total",
			Help: "Sessions that ended with an error, by kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(s.Sessions, s.Active, s.Bytes, s.Errors)
	}
	return s
}

func (s *Stats) sessionStart() {
	if s == nil {
		return
	}
	s.Active.Inc()
}

func (s *Stats) sessionEnd(err error) {
	if s == nil {
		return
	}
	s.Active.Dec()
	if k := errKind(err); k != "" {
		s.Errors.WithLabelValues(k).Inc()
	}
}

func (s *Stats) sniffed(tag string) {
	if s == nil {
		return
	}
	s.Sessions.WithLabelValues(tag).Inc()
}

func (s *Stats) addTraffic(c *netLayer.TrafficCounter) {
	if s == nil || c == nil {
		return
	}
	s.Bytes.WithLabelValues("up").Add(float64(c.Up.Load()))
	s.Bytes.WithLabelValues("down").Add(float64(c.Down.Load()))
}
