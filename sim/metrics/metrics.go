// Package metrics exposes per-run protocol counters as Prometheus collectors.
//
// A Collector satisfies both node.Recorder and channel.Recorder, so one value observes
// every drop, transmission and delivery of a simulation. Collectors are created against
// an injected registerer; runs that must not share counters use separate registries.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/piconetwork/lpwan-sim/sim/node"
	"github.com/piconetwork/lpwan-sim/sim/packet"
)

// Collector bundles the simulation metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Drops          *prometheus.CounterVec
	Transmissions  *prometheus.CounterVec
	EdgeDeliveries prometheus.Counter
	Emitted        prometheus.Counter
	Delivered      prometheus.Counter
	DeliveryDelay  prometheus.Histogram
	DeliveryHops   prometheus.Histogram
	Nodes          prometheus.Gauge
	Links          prometheus.Gauge
	SimulatedTime  prometheus.Gauge
}

// NewCollector registers the simulation metrics against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{
		gatherer: gatherer,
		Drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lpwan_drops_total",
			Help: "Packets dropped as part of normal protocol behaviour, labeled by reason.",
		}, []string{"reason"}),
		Transmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lpwan_transmissions_total",
			Help: "Broadcasts handed to the channel, labeled by kind (source, relay, ack).",
		}, []string{"kind"}),
		EdgeDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lpwan_edge_deliveries_total",
			Help: "Point-to-point copies that survived the edge reliability trial.",
		}),
		Emitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lpwan_messages_emitted_total",
			Help: "Messages emitted by sources.",
		}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lpwan_messages_delivered_total",
			Help: "Distinct messages acknowledged by a gateway.",
		}),
		DeliveryDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lpwan_delivery_delay",
			Help:    "Source-to-gateway delay in simulated time units.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		DeliveryHops: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lpwan_delivery_hops",
			Help:    "Relays traversed by messages reaching a gateway.",
			Buckets: prometheus.LinearBuckets(0, 1, 16),
		}),
		Nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lpwan_nodes",
			Help: "Registered nodes.",
		}),
		Links: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lpwan_links",
			Help: "Directed channel edges.",
		}),
		SimulatedTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lpwan_simulated_time",
			Help: "Simulation clock when the run ended.",
		}),
	}
	for name, col := range map[string]prometheus.Collector{
		"lpwan_drops_total":              c.Drops,
		"lpwan_transmissions_total":      c.Transmissions,
		"lpwan_edge_deliveries_total":    c.EdgeDeliveries,
		"lpwan_messages_emitted_total":   c.Emitted,
		"lpwan_messages_delivered_total": c.Delivered,
		"lpwan_delivery_delay":           c.DeliveryDelay,
		"lpwan_delivery_hops":            c.DeliveryHops,
		"lpwan_nodes":                    c.Nodes,
		"lpwan_links":                    c.Links,
		"lpwan_simulated_time":           c.SimulatedTime,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("registering %s: %w", name, err)
		}
	}
	return c, nil
}

// ObserveDrop counts an expected drop.
func (c *Collector) ObserveDrop(_ packet.NodeID, reason node.DropReason) {
	if c == nil {
		return
	}
	c.Drops.WithLabelValues(string(reason)).Inc()
}

// ObserveTransmission counts a broadcast.
func (c *Collector) ObserveTransmission(_ packet.NodeID, kind node.TransmissionKind) {
	if c == nil {
		return
	}
	c.Transmissions.WithLabelValues(string(kind)).Inc()
}

// ObserveEdgeLoss counts a copy lost on an unreliable edge.
func (c *Collector) ObserveEdgeLoss(_, _ packet.NodeID) {
	if c == nil {
		return
	}
	c.Drops.WithLabelValues(string(node.DropEdgeLoss)).Inc()
}

// ObserveEdgeDelivery counts a copy handed to its receiver.
func (c *Collector) ObserveEdgeDelivery(_, _ packet.NodeID) {
	if c == nil {
		return
	}
	c.EdgeDeliveries.Inc()
}

// ObserveEmission counts a fresh source message.
func (c *Collector) ObserveEmission() {
	if c == nil {
		return
	}
	c.Emitted.Inc()
}

// ObserveArrival records the first gateway reception of a message.
func (c *Collector) ObserveArrival(a node.Arrival) {
	if c == nil {
		return
	}
	c.Delivered.Inc()
	c.DeliveryDelay.Observe(a.Delay())
	c.DeliveryHops.Observe(float64(a.HopCount))
}

// SetTopology records the size of the simulated network.
func (c *Collector) SetTopology(nodes, links int) {
	if c == nil {
		return
	}
	c.Nodes.Set(float64(nodes))
	c.Links.Set(float64(links))
}

// SetSimulatedTime records the final clock value.
func (c *Collector) SetSimulatedTime(t float64) {
	if c == nil {
		return
	}
	c.SimulatedTime.Set(t)
}

// WriteTextfile dumps every gathered metric to path in the Prometheus text format.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.gatherer); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
