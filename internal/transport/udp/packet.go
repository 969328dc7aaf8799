// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	applog "audiovis/internal/log"
	"audiovis/internal/transport"
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Source            | uint8          | 1            | 0 local, 1 loopback, 2 mic |
| Magnitude Count   | uint16         | 2            | Number of floats (N)    |
| Magnitudes        | []float32      | N * 4        | Centre spectrum         |
+-----------------------------------------------------------------------------+
*/

// HeaderSize is the fixed part of a packet.
const HeaderSize = 4 + 8 + 1 + 2

// Packet is a decoded spectrum packet.
type Packet struct {
	Sequence   uint32
	Timestamp  int64
	Source     uint8
	Magnitudes []float32
}

// ErrShortPacket is returned by Decode for truncated input.
var ErrShortPacket = errors.New("short packet")

// Encode appends the packet for f to buf. Spectra longer than 65535 bins
// are truncated.
func Encode(buf *bytes.Buffer, seq uint32, f *transport.Frame) {
	count := min(len(f.Spectrum), math.MaxUint16)

	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[0:], seq)
	binary.BigEndian.PutUint64(header[4:], uint64(f.Timestamp))
	header[12] = uint8(f.Kind)
	binary.BigEndian.PutUint16(header[13:], uint16(count))
	buf.Write(header[:])

	var word [4]byte
	for _, m := range f.Spectrum[:count] {
		binary.BigEndian.PutUint32(word[:], math.Float32bits(m))
		buf.Write(word[:])
	}
}

// Decode parses one packet.
func Decode(data []byte) (Packet, error) {
	if len(data) < HeaderSize {
		return Packet{}, ErrShortPacket
	}
	p := Packet{
		Sequence:  binary.BigEndian.Uint32(data[0:]),
		Timestamp: int64(binary.BigEndian.Uint64(data[4:])),
		Source:    data[12],
	}
	count := int(binary.BigEndian.Uint16(data[13:]))
	payload := data[HeaderSize:]
	if len(payload) < count*4 {
		return Packet{}, fmt.Errorf("%w: %d magnitudes declared, %d bytes present", ErrShortPacket, count, len(payload))
	}

	p.Magnitudes = make([]float32, count)
	for i := range p.Magnitudes {
		p.Magnitudes[i] = math.Float32frombits(binary.BigEndian.Uint32(payload[4*i:]))
	}
	return p, nil
}

// Transport sends the centre spectrum of each Frame as one packet.
type Transport struct {
	sender *Sender
	mu     sync.Mutex
	seq    uint32
	packet bytes.Buffer // reused between sends
	log    applog.Logger
}

// NewTransport dials targetAddress.
func NewTransport(targetAddress string) (*Transport, error) {
	sender, err := NewSender(targetAddress)
	if err != nil {
		return nil, err
	}
	return &Transport{sender: sender, log: applog.Named("transport[udp]")}, nil
}

// Send accepts *transport.Frame values; anything else is an error.
func (t *Transport) Send(data any) error {
	f, ok := data.(*transport.Frame)
	if !ok {
		return fmt.Errorf("udp transport cannot send %T", data)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	t.packet.Reset()
	Encode(&t.packet, t.seq, f)
	if err := t.sender.Send(t.packet.Bytes()); err != nil {
		return err
	}
	t.log.Debugf("sent packet %d (%d bytes)", t.seq, t.packet.Len())
	return nil
}

func (t *Transport) Close() error {
	return t.sender.Close()
}

var _ transport.Transport = (*Transport)(nil)
