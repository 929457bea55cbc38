package observer

import (
	"bytes"
	"encoding/binary"
	"math"
	"net"
	"strconv"
	"strings"
	"time"
)

// UDPOSCSink emits one UDP packet per region per frame, encoded as a
// minimal OSC message: an address pattern (the observer's `scheme`
// string, with a `{region}` placeholder) followed by a typetag string
// and the event's filtered field values as args (spec §4.6: "UDP/OSC:
// emits a packet per region per frame; message template driven by the
// observer's `scheme` string"). Grounded on simulation/xplane.go's
// net.UDPConn/WriteToUDP usage and its RREF/DREF string+binary packet
// framing, generalized into the OSC wire shape instead of X-Plane's
// fixed dataref layout.
type UDPOSCSink struct {
	conn   *net.UDPConn
	addr   *net.UDPAddr
	Scheme string
}

// NewUDPOSCSink sends one OSC packet per region per frame to addr
// over conn, addressed by scheme (e.g. "/lumagrid/{region}").
func NewUDPOSCSink(conn *net.UDPConn, addr *net.UDPAddr, scheme string) *UDPOSCSink {
	return &UDPOSCSink{conn: conn, addr: addr, Scheme: scheme}
}

func (s *UDPOSCSink) Start(ts time.Time) error { return nil }
func (s *UDPOSCSink) Stop(ts time.Time) error  { return nil }

func (s *UDPOSCSink) Emit(regionName string, ts time.Time, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	address := strings.ReplaceAll(s.Scheme, "{region}", regionName)
	packet := encodeOSCMessage(address, events[len(events)-1].Fields)
	_, err := s.conn.WriteToUDP(packet, s.addr)
	return err
}

// encodeOSCMessage builds an OSC message: a null-padded address
// pattern, a null-padded typetag string (",f" for numeric fields,
// ",s" for everything else), and the args themselves, each padded to
// a 4-byte boundary as the OSC spec requires.
func encodeOSCMessage(address string, fields []FilterField) []byte {
	var buf bytes.Buffer
	buf.Write(oscPad([]byte(address)))

	tags := []byte{','}
	var args bytes.Buffer
	for _, f := range fields {
		if v, err := strconv.ParseFloat(f.Value, 32); err == nil {
			tags = append(tags, 'f')
			var fbuf [4]byte
			binary.BigEndian.PutUint32(fbuf[:], math.Float32bits(float32(v)))
			args.Write(fbuf[:])
			continue
		}
		tags = append(tags, 's')
		args.Write(oscPad([]byte(f.Value)))
	}

	buf.Write(oscPad(tags))
	buf.Write(args.Bytes())
	return buf.Bytes()
}

// oscPad null-terminates b and pads it to the next 4-byte boundary.
func oscPad(b []byte) []byte {
	padded := append(append([]byte{}, b...), 0)
	for len(padded)%4 != 0 {
		padded = append(padded, 0)
	}
	return padded
}
