// Package capture reads and writes raw Ethernet frames against pcap files
// and live devices, so a Host can be driven from (or recorded to) real
// packet captures. It never inspects frame contents itself — that is
// netif.Interface's job — it only moves bytes.
package capture

import (
	"context"

	"github.com/google/gopacket"
	_ "github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
)

// defaultSnapLen is the same default tcpdump uses.
const defaultSnapLen = 262144

// Reader yields raw Ethernet frame bytes, one per captured packet, until
// ctx is cancelled or the underlying source is exhausted.
type Reader interface {
	Frames(ctx context.Context) (<-chan []byte, error)
}

// PcapFile reads frames from an offline capture file.
type PcapFile struct {
	Path     string
	BPFilter string
}

// NewPcapFile creates a Reader over an existing pcap file.
func NewPcapFile(path, bpfilter string) *PcapFile {
	return &PcapFile{Path: path, BPFilter: bpfilter}
}

func (f *PcapFile) Frames(ctx context.Context) (<-chan []byte, error) {
	handle, err := pcap.OpenOffline(f.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "capture: open %s", f.Path)
	}
	if err := applyBPF(handle, f.BPFilter); err != nil {
		handle.Close()
		return nil, err
	}
	return streamFrames(ctx, handle), nil
}

// PcapLive reads frames from a live network device.
type PcapLive struct {
	Device   string
	BPFilter string
	SnapLen  int32
}

// NewPcapLive creates a Reader over a live device in promiscuous mode.
func NewPcapLive(device, bpfilter string) *PcapLive {
	return &PcapLive{Device: device, BPFilter: bpfilter, SnapLen: defaultSnapLen}
}

func (d *PcapLive) Frames(ctx context.Context) (<-chan []byte, error) {
	snaplen := d.SnapLen
	if snaplen <= 0 {
		snaplen = defaultSnapLen
	}
	handle, err := pcap.OpenLive(d.Device, snaplen, true, pcap.BlockForever)
	if err != nil {
		return nil, errors.Wrapf(err, "capture: open live device %s", d.Device)
	}
	if err := applyBPF(handle, d.BPFilter); err != nil {
		handle.Close()
		return nil, err
	}
	return streamFrames(ctx, handle), nil
}

func applyBPF(handle *pcap.Handle, filter string) error {
	if filter == "" {
		return nil
	}
	if err := handle.SetBPFFilter(filter); err != nil {
		return errors.Wrap(err, "capture: set BPF filter")
	}
	return nil
}

// streamFrames overlaps pcap I/O with channel delivery in its own
// goroutine; every downstream consumer (netif.Interface.RecvFrame and
// beyond) still runs synchronously on the caller's goroutine, one frame at
// a time, reading from the returned channel.
func streamFrames(ctx context.Context, handle *pcap.Handle) <-chan []byte {
	out := make(chan []byte, 10)

	go func() {
		defer handle.Close()
		defer close(out)

		source := gopacket.NewPacketSource(handle, handle.LinkType())
		for packet := range source.Packets() {
			select {
			case <-ctx.Done():
				return
			case out <- packet.Data():
			}
		}
	}()

	return out
}
