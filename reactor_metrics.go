package slava

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics returns a prometheus.Collector exposing the reactor's internal
// counters: how many FDs are currently awaited in each direction, how many
// wakes have fired, how many drain-close sweeps have finished a close, and
// how many fatal poll(2) errors were observed (there should never be more
// than one, since the next is the process aborting). Register it with a
// prometheus.Registerer to scrape it; it is otherwise inert.
func Metrics() prometheus.Collector {
	return reactorCollector{r: defaultReactor()}
}

type reactorCollector struct {
	r *reactor
}

var (
	readWaitersDesc = prometheus.NewDesc(
		"slava_reactor_read_waiters",
		"Number of file descriptors currently awaiting readability.",
		nil, nil,
	)
	writeWaitersDesc = prometheus.NewDesc(
		"slava_reactor_write_waiters",
		"Number of file descriptors currently awaiting writability.",
		nil, nil,
	)
	closingFDsDesc = prometheus.NewDesc(
		"slava_reactor_closing_fds",
		"Number of file descriptors currently draining before close.",
		nil, nil,
	)
	wakesTotalDesc = prometheus.NewDesc(
		"slava_reactor_wakes_total",
		"Total number of task wakes (Wake and WakeByRef calls), from the reactor's poll loop or any other source.",
		nil, nil,
	)
	drainClosesTotalDesc = prometheus.NewDesc(
		"slava_reactor_drain_closes_total",
		"Total number of file descriptors closed after draining.",
		nil, nil,
	)
	pollErrorsTotalDesc = prometheus.NewDesc(
		"slava_reactor_poll_errors_total",
		"Total number of fatal poll(2) errors observed before process abort.",
		nil, nil,
	)
)

func (c reactorCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- readWaitersDesc
	ch <- writeWaitersDesc
	ch <- closingFDsDesc
	ch <- wakesTotalDesc
	ch <- drainClosesTotalDesc
	ch <- pollErrorsTotalDesc
}

func (c reactorCollector) Collect(ch chan<- prometheus.Metric) {
	c.r.mu.Lock()
	readWaiters := len(c.r.readWaiters)
	writeWaiters := len(c.r.writeWaiters)
	closingFDs := len(c.r.closingFDs)
	c.r.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(readWaitersDesc, prometheus.GaugeValue, float64(readWaiters))
	ch <- prometheus.MustNewConstMetric(writeWaitersDesc, prometheus.GaugeValue, float64(writeWaiters))
	ch <- prometheus.MustNewConstMetric(closingFDsDesc, prometheus.GaugeValue, float64(closingFDs))
	ch <- prometheus.MustNewConstMetric(wakesTotalDesc, prometheus.CounterValue, float64(c.r.wakesTotal.Load()))
	ch <- prometheus.MustNewConstMetric(drainClosesTotalDesc, prometheus.CounterValue, float64(c.r.drainClosesTotal.Load()))
	ch <- prometheus.MustNewConstMetric(pollErrorsTotalDesc, prometheus.CounterValue, float64(c.r.pollErrorsTotal.Load()))
}
