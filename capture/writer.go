package capture

import (
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mel2oo/go-tcpstack/slices"
)

// Writer records raw Ethernet frames to a pcap file, so a netif.Interface's
// outbound frame queue can be replayed or diffed later. The teacher's pcap
// tooling only ever read captures; recording is new here.
type Writer struct {
	file *os.File
	w    *pcapgo.Writer
}

// NewWriter creates a pcap file at path and writes its header for Ethernet
// link-layer frames.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "capture: create %s", path)
	}

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(defaultSnapLen, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "capture: write pcap header")
	}

	return &Writer{file: f, w: w}, nil
}

// WriteFrame appends one raw Ethernet frame, stamped with the given
// timestamp.
func (w *Writer) WriteFrame(data []byte, timestamp time.Time) error {
	ci := gopacket.CaptureInfo{
		Timestamp:     timestamp,
		CaptureLength: len(data),
		Length:        len(data),
	}
	return errors.Wrap(w.w.WritePacket(ci, data), "capture: write frame")
}

// WriteFrames appends a batch of raw Ethernet frames, all stamped with the
// same timestamp, logging a length summary for the batch before writing.
func (w *Writer) WriteFrames(frames [][]byte, timestamp time.Time) error {
	lengths := slices.Map(frames, func(f []byte) int { return len(f) })
	logrus.WithField("lengths", lengths).Debug("capture: writing frame batch")

	for _, frame := range frames {
		if err := w.WriteFrame(frame, timestamp); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the underlying pcap file.
func (w *Writer) Close() error {
	return w.file.Close()
}
