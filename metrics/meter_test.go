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

package metrics

import (
	"bytes"
	"errors"
	"io"
	"math"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// pipeStream adapts a net.Conn half to the metrics.Stream surface used by
// MeteredStream (io.Reader + io.Writer + io.Closer).
type pipeStream struct {
	net.Conn
}

// TestMeteredStream_Conservation (spec.md section 8, "metered stream
// conservation"): over a paired duplex, one side's egress equals the other's
// ingress once both have quiesced.
func TestMeteredStream_Conservation(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientCounters := NewCounters()
	serverCounters := NewCounters()

	client := NewMeteredStream(pipeStream{clientConn}, clientCounters)
	server := NewMeteredStream(pipeStream{serverConn}, serverCounters)

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4)
		_, _ = io.ReadFull(server, buf)
		_, _ = server.Write([]byte("pong"))
	}()

	_, err := client.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	require.Equal(t, "pong", string(buf))

	<-done

	require.EqualValues(t, 4, client.Counters().Egress())
	require.EqualValues(t, 4, client.Counters().Ingress())
	require.EqualValues(t, 4, server.Counters().Egress())
	require.EqualValues(t, 4, server.Counters().Ingress())

	require.Equal(t, client.Counters().Egress(), server.Counters().Ingress())
	require.Equal(t, server.Counters().Egress(), client.Counters().Ingress())
}

type failingStream struct {
	readErr  error
	writeN   int
	writeErr error
}

func (f *failingStream) Read(p []byte) (int, error)  { return 0, f.readErr }
func (f *failingStream) Write(p []byte) (int, error) { return f.writeN, f.writeErr }
func (f *failingStream) Close() error                { return nil }

func TestMeteredStream_FailedIODoesNotIncrement(t *testing.T) {
	inner := &failingStream{readErr: errors.New("boom"), writeN: 0, writeErr: errors.New("boom")}
	counters := NewCounters()
	m := NewMeteredStream(inner, counters)

	_, err := m.Read(make([]byte, 10))
	require.Error(t, err)
	require.EqualValues(t, 0, counters.Ingress())

	_, err = m.Write([]byte("hello"))
	require.Error(t, err)
	require.EqualValues(t, 0, counters.Egress())
}

func TestMeteredStream_PartialWriteCountsBytesDelivered(t *testing.T) {
	inner := &failingStream{writeN: 3, writeErr: errors.New("short write")}
	counters := NewCounters()
	m := NewMeteredStream(inner, counters)

	n, err := m.Write([]byte("hello"))
	require.Error(t, err)
	require.Equal(t, 3, n)
	require.EqualValues(t, 3, counters.Egress())
}

// TestMeteredStream_Saturation (spec.md section 8, "metered stream
// saturation"): counters never wrap, incrementing by min(n, room).
func TestMeteredStream_Saturation(t *testing.T) {
	counters := NewCounters()
	counters.ingress.Store(math.MaxUint64 - 3)

	got := addSaturating(&counters.ingress, 10)
	require.EqualValues(t, math.MaxUint64, got)
	require.EqualValues(t, math.MaxUint64, counters.Ingress())

	got = addSaturating(&counters.ingress, 5)
	require.EqualValues(t, math.MaxUint64, got, "already-saturated counter must not wrap on further increments")
}

func TestMeteredStream_SharedCountersAggregate(t *testing.T) {
	shared := NewCounters()
	a := NewMeteredStream(&bufferStream{buf: bytes.NewBuffer(nil)}, shared)
	b := NewMeteredStream(&bufferStream{buf: bytes.NewBuffer(nil)}, shared)

	_, err := a.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = b.Write([]byte("de"))
	require.NoError(t, err)

	require.EqualValues(t, 5, shared.Egress())
}

type bufferStream struct{ buf *bytes.Buffer }

func (s *bufferStream) Read(p []byte) (int, error)  { return s.buf.Read(p) }
func (s *bufferStream) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *bufferStream) Close() error                { return nil }

func TestMeteredStream_CloseAndFlushPassThrough(t *testing.T) {
	inner := &flushableStream{bufferStream: &bufferStream{buf: bytes.NewBuffer(nil)}}
	m := NewMeteredStream(inner, NewCounters())

	require.NoError(t, m.Flush())
	require.True(t, inner.flushed)
	require.NoError(t, m.Close())
	require.True(t, inner.closed)
}

type flushableStream struct {
	*bufferStream
	flushed bool
	closed  bool
}

func (f *flushableStream) Flush() error {
	f.flushed = true
	return nil
}

func (f *flushableStream) Close() error {
	f.closed = true
	return nil
}
