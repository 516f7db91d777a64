// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package metrics holds the metered-stream utility the sync path wraps its
// peer connections in (spec.md section 4.5), ported from the byte-counting
// wrapper reth's network_io_meter carried over a duplex stream, onto Go's
// io.Reader/io.Writer and sync/atomic rather than a pinned poll_read future.
package metrics

import (
	"io"
	"math"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters is the shared, reference-counted ingress/egress pair a
// MeteredStream increments. Many streams may point at the same Counters to
// report an aggregate total (spec.md section 4.5) — there is no locking
// here; both fields are only ever touched through their atomic methods.
type Counters struct {
	ingress atomic.Uint64
	egress  atomic.Uint64
}

// NewCounters returns a fresh, zeroed Counters pair.
func NewCounters() *Counters { return &Counters{} }

// Ingress returns the total bytes read so far. Advisory only: callers should
// not rely on it being perfectly synchronized with a concurrent writer
// (spec.md section 5).
func (c *Counters) Ingress() uint64 { return c.ingress.Load() }

// Egress returns the total bytes written so far.
func (c *Counters) Egress() uint64 { return c.egress.Load() }

// addSaturating adds n to *counter, clamping at math.MaxUint64 instead of
// wrapping (spec.md section 8, "metered stream saturation").
func addSaturating(counter *atomic.Uint64, n uint64) uint64 {
	for {
		prev := counter.Load()
		if prev == math.MaxUint64 {
			return prev
		}
		delta := n
		if room := math.MaxUint64 - prev; delta > room {
			delta = room
		}
		next := prev + delta
		if counter.CompareAndSwap(prev, next) {
			return next
		}
	}
}

// Sink publishes the absolute post-increment value of a counter reading,
// keyed by whatever labels the caller attached when constructing it
// (spec.md section 4.5). NewPrometheusSink below is the concrete
// implementation this repository wires in; tests may supply their own.
type Sink interface {
	SetIngress(absolute uint64)
	SetEgress(absolute uint64)
}

// PrometheusSink publishes ingress/egress readings as a labeled
// prometheus.Gauge pair — a gauge, not a Counter, because the spec requires
// publishing the absolute value, not calling Add per observation (spec.md
// section 4.5: "publishes the absolute post-increment value... as a counter
// reading").
type PrometheusSink struct {
	ingress prometheus.Gauge
	egress  prometheus.Gauge
}

// NewPrometheusSink builds a Sink that reports through the given vectors
// under labels. Callers typically register ingressVec/egressVec once at
// process startup (e.g. "erigon_stream_ingress_bytes_total",
// "erigon_stream_egress_bytes_total") and derive one Sink per stream from
// them via GetMetricWith.
func NewPrometheusSink(ingressVec, egressVec *prometheus.GaugeVec, labels prometheus.Labels) (*PrometheusSink, error) {
	ingress, err := ingressVec.GetMetricWith(labels)
	if err != nil {
		return nil, err
	}
	egress, err := egressVec.GetMetricWith(labels)
	if err != nil {
		return nil, err
	}
	return &PrometheusSink{ingress: ingress, egress: egress}, nil
}

func (s *PrometheusSink) SetIngress(absolute uint64) { s.ingress.Set(float64(absolute)) }
func (s *PrometheusSink) SetEgress(absolute uint64)  { s.egress.Set(float64(absolute)) }

// Stream is the minimal bidirectional byte-stream surface MeteredStream
// wraps transparently: read, write, and close, matching what the sync path's
// peer connections (net.Conn-shaped) actually need (spec.md section 4.5).
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// MeteredStream wraps a Stream, transparently exposing the same read/write
// surface while maintaining a shared Counters pair and, optionally,
// publishing each post-I/O absolute reading through a Sink (spec.md section
// 4.5).
type MeteredStream struct {
	inner    Stream
	counters *Counters
	sink     Sink
}

// NewMeteredStream wraps inner, counting through counters. Pass a freshly
// constructed *Counters for a stream that should be measured independently,
// or a Counters shared with other streams to aggregate their traffic
// (spec.md section 4.5, "the same counter pair may be shared by many wrapped
// streams").
func NewMeteredStream(inner Stream, counters *Counters) *MeteredStream {
	return &MeteredStream{inner: inner, counters: counters}
}

// SetSink attaches sink, whose SetIngress/SetEgress are called after every
// successful read/write with the counters' new absolute value. A nil sink
// (the default) disables publishing without disabling counting.
func (m *MeteredStream) SetSink(sink Sink) { m.sink = sink }

// Counters returns the shared counter pair this stream increments.
func (m *MeteredStream) Counters() *Counters { return m.counters }

// Read reads from the wrapped stream. On success, ingress is incremented by
// the number of bytes read; a failed read (n == 0 with err != nil, or a
// partial read followed by an error) only counts the bytes actually
// delivered (spec.md section 4.5, "failed I/O does not increment counters").
func (m *MeteredStream) Read(p []byte) (int, error) {
	n, err := m.inner.Read(p)
	if n > 0 {
		absolute := addSaturating(&m.counters.ingress, uint64(n))
		if m.sink != nil {
			m.sink.SetIngress(absolute)
		}
	}
	return n, err
}

// Write writes to the wrapped stream. On success, egress is incremented by
// the number of bytes written.
func (m *MeteredStream) Write(p []byte) (int, error) {
	n, err := m.inner.Write(p)
	if n > 0 {
		absolute := addSaturating(&m.counters.egress, uint64(n))
		if m.sink != nil {
			m.sink.SetEgress(absolute)
		}
	}
	return n, err
}

// Close passes through to the wrapped stream untouched (spec.md section
// 4.5, "flush and shutdown pass through untouched").
func (m *MeteredStream) Close() error { return m.inner.Close() }

// Flusher is implemented by streams (e.g. bufio.Writer-backed transports)
// that need an explicit flush passed through.
type Flusher interface {
	Flush() error
}

// Flush passes through to the wrapped stream's Flush, if it has one.
func (m *MeteredStream) Flush() error {
	if f, ok := m.inner.(Flusher); ok {
		return f.Flush()
	}
	return nil
}
