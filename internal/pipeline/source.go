package pipeline

import (
	"net"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
)

// BPFFilter is the default capture filter: game traffic only. Companion
// capture is optional and requires a widened filter (see
// CompanionBPFFilter).
const BPFFilter = "udp port 3022 or tcp port 3023"

// CompanionBPFFilter additionally captures the companion app's TCP port.
const CompanionBPFFilter = BPFFilter + " or tcp port 21587"

// readTimeout bounds how long a live capture blocks between frames, so the
// session can poll its cancellation token periodically even when the wire
// is idle.
const readTimeout = time.Second

// FrameSource yields link-layer frames with a monotonically increasing
// capture timestamp. Implemented by both the live interface source and the
// offline (pcap replay) source, so the rest of the pipeline is unaware of
// which mode it is running in.
type FrameSource interface {
	// Frames returns a channel of decoded packets. The channel closes when
	// the source is exhausted (replay) or Close is called (live).
	Frames() <-chan gopacket.Packet
	Close()
}

type liveSource struct {
	handle *pcap.Handle
	out    chan gopacket.Packet
	done   chan struct{}
}

// OpenInterface opens a live capture on the named interface (device name,
// dotted-quad address, or friendly display name, case-insensitively
// matched), applying filter. If name is empty, the first interface with at
// least one address is used.
func OpenInterface(name, filter string) (FrameSource, error) {
	device, err := resolveInterface(name)
	if err != nil {
		return nil, err
	}

	handle, err := pcap.OpenLive(device, 65535, true, readTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open interface %s", device)
	}
	if err := handle.SetBPFFilter(filter); err != nil {
		handle.Close()
		return nil, errors.Wrapf(err, "failed to set BPF filter %q", filter)
	}

	ls := &liveSource{
		handle: handle,
		out:    make(chan gopacket.Packet),
		done:   make(chan struct{}),
	}
	go ls.run()
	return ls, nil
}

func (s *liveSource) run() {
	defer close(s.out)
	packetSource := gopacket.NewPacketSource(s.handle, s.handle.LinkType())
	for {
		select {
		case <-s.done:
			return
		case packet, ok := <-packetSource.Packets():
			if !ok {
				return
			}
			select {
			case s.out <- packet:
			case <-s.done:
				return
			}
		}
	}
}

func (s *liveSource) Frames() <-chan gopacket.Packet { return s.out }

func (s *liveSource) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.handle.Close()
}

// offlineSource replays a previously captured pcap file through the exact
// same pipeline used for live capture.
type offlineSource struct {
	handle *pcap.Handle
	out    chan gopacket.Packet
	done   chan struct{}
}

func OpenFile(path string) (FrameSource, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open capture file %s", path)
	}

	os := &offlineSource{
		handle: handle,
		out:    make(chan gopacket.Packet),
		done:   make(chan struct{}),
	}
	go os.run()
	return os, nil
}

func (s *offlineSource) run() {
	defer close(s.out)
	defer s.handle.Close()
	packetSource := gopacket.NewPacketSource(s.handle, s.handle.LinkType())
	for packet := range packetSource.Packets() {
		select {
		case s.out <- packet:
		case <-s.done:
			return
		}
	}
}

func (s *offlineSource) Frames() <-chan gopacket.Packet { return s.out }

func (s *offlineSource) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// resolveInterface matches name against device names, interface addresses,
// and friendly display names, case-insensitively. An empty name picks the
// first interface with at least one address.
func resolveInterface(name string) (string, error) {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return "", errors.Wrap(err, "failed to list network interfaces")
	}

	if name == "" {
		for _, d := range devices {
			if len(d.Addresses) > 0 {
				return d.Name, nil
			}
		}
		return "", errors.New("no network interface with an address was found")
	}

	ip := net.ParseIP(name)
	for _, d := range devices {
		if strings.EqualFold(d.Name, name) || strings.EqualFold(d.Description, name) {
			return d.Name, nil
		}
		if ip != nil {
			for _, a := range d.Addresses {
				if a.IP.Equal(ip) {
					return d.Name, nil
				}
			}
		}
	}

	return "", errors.Errorf("no network interface found matching %q", name)
}

// ListAddressedInterfaces returns the device names of every interface that
// has at least one address, for an interactive picker.
func ListAddressedInterfaces() ([]string, error) {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list network interfaces")
	}
	var names []string
	for _, d := range devices {
		if len(d.Addresses) > 0 {
			names = append(names, d.Name)
		}
	}
	return names, nil
}

// SegmentFromPacket extracts a Segment from a decoded gopacket.Packet, or
// ok=false if the packet carries neither TCP nor UDP over IP (and is
// therefore dropped).
func SegmentFromPacket(packet gopacket.Packet, captureMs int64) (Segment, bool) {
	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	udpLayer := packet.Layer(layers.LayerTypeUDP)

	switch {
	case tcpLayer != nil:
		tcp, _ := tcpLayer.(*layers.TCP)
		return Segment{
			Proto:     "tcp",
			SrcPort:   uint16(tcp.SrcPort),
			DstPort:   uint16(tcp.DstPort),
			Payload:   tcp.Payload,
			CaptureMs: captureMs,
		}, true
	case udpLayer != nil:
		udp, _ := udpLayer.(*layers.UDP)
		return Segment{
			Proto:     "udp",
			SrcPort:   uint16(udp.SrcPort),
			DstPort:   uint16(udp.DstPort),
			Payload:   udp.Payload,
			CaptureMs: captureMs,
		}, true
	}
	return Segment{}, false
}
