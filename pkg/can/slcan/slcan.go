// Package slcan is a CAN bus on a serial line CAN adapter (Lawicel protocol),
// as found on most USB to CAN dongles.
package slcan

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	can "github.com/samsamfire/gocia402/pkg/can"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const (
	DefaultBaudRate    = 115200
	DefaultBitrate     = 500_000
	DefaultReadTimeout = 100 * time.Millisecond
)

var ErrMalformed = errors.New("malformed slcan frame")

// Bitrate setup commands S0 - S8
var bitrateCommands = map[int]string{
	10_000:    "S0",
	20_000:    "S1",
	50_000:    "S2",
	100_000:   "S3",
	125_000:   "S4",
	250_000:   "S5",
	500_000:   "S6",
	800_000:   "S7",
	1_000_000: "S8",
}

func init() {
	can.RegisterInterface("slcan", NewSlcanBus)
}

type SlcanBus struct {
	port       io.ReadWriteCloser
	bitrate    int
	mu         sync.Mutex
	writeMu    sync.Mutex
	rxCallback can.FrameListener
	stop       chan struct{}
	wg         sync.WaitGroup
}

// Open a serial adapter e.g. "/dev/ttyACM0", the CAN bitrate is [DefaultBitrate]
func NewSlcanBus(channel string) (can.Bus, error) {
	mode := &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(channel, mode)
	if err != nil {
		return nil, fmt.Errorf("slcan : failed to open %s: %w", channel, err)
	}
	if err := port.SetReadTimeout(DefaultReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("slcan : failed to set timeout: %w", err)
	}
	bus, err := NewBus(port, DefaultBitrate)
	if err != nil {
		port.Close()
		return nil, err
	}
	return bus, nil
}

// Create a bus on an already opened port
func NewBus(port io.ReadWriteCloser, bitrate int) (*SlcanBus, error) {
	if _, ok := bitrateCommands[bitrate]; !ok {
		return nil, fmt.Errorf("slcan : unsupported bitrate %d", bitrate)
	}
	return &SlcanBus{port: port, bitrate: bitrate}, nil
}

func (b *SlcanBus) write(command string) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_, err := b.port.Write([]byte(command + "\r"))
	return err
}

// "Connect" implementation of Bus interface
func (b *SlcanBus) Connect(...any) error {
	// Close any channel left open, the adapter may refuse it
	_ = b.write("C")
	if err := b.write(bitrateCommands[b.bitrate]); err != nil {
		return err
	}
	if err := b.write("O"); err != nil {
		return err
	}
	b.stop = make(chan struct{})
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.processIncoming()
	}()
	return nil
}

// "Disconnect" implementation of Bus interface
func (b *SlcanBus) Disconnect() error {
	if b.stop == nil {
		return nil
	}
	err := b.write("C")
	close(b.stop)
	closeErr := b.port.Close()
	b.wg.Wait()
	b.stop = nil
	if err != nil {
		return err
	}
	return closeErr
}

// "Send" implementation of Bus interface
func (b *SlcanBus) Send(frame can.Frame) error {
	return b.write(EncodeFrame(frame))
}

// "Subscribe" implementation of Bus interface
func (b *SlcanBus) Subscribe(rxCallback can.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rxCallback = rxCallback
	return nil
}

// Longest line kept : a standard frame with 8 bytes and a timestamp is 25
// characters. Longer lines are dropped up to the next terminator.
const MaxLineLength = 32

// Splits the received bytes into lines
type lineBuffer struct {
	line     []byte
	overflow bool
}

// Add a received byte, returns a complete line when c terminates it
func (l *lineBuffer) feed(c byte) (string, bool) {
	switch c {
	case '\r':
		line, overflow := string(l.line), l.overflow
		l.line, l.overflow = l.line[:0], false
		if overflow {
			return "", false
		}
		return line, true
	case '\a':
		log.Debugf("[CAN] slcan adapter refused a command")
		l.line, l.overflow = l.line[:0], false
		return "", false
	}
	if l.overflow {
		return "", false
	}
	if len(l.line) >= MaxLineLength {
		log.Debugf("[CAN] slcan dropping line longer than %d bytes", MaxLineLength)
		l.line, l.overflow = l.line[:0], true
		return "", false
	}
	l.line = append(l.line, c)
	return "", false
}

func (b *SlcanBus) processIncoming() {
	buffer := make([]byte, 64)
	lines := lineBuffer{line: make([]byte, 0, MaxLineLength)}
	for {
		n, err := b.port.Read(buffer)
		select {
		case <-b.stop:
			return
		default:
		}
		if err != nil {
			log.Infof("[CAN] exiting slcan reception : %v", err)
			return
		}
		for _, c := range buffer[:n] {
			if line, ok := lines.feed(c); ok {
				b.handleLine(line)
			}
		}
	}
}

func (b *SlcanBus) handleLine(line string) {
	if line == "" || (line[0] != 't' && line[0] != 'r') {
		return
	}
	frame, err := DecodeFrame(line)
	if err != nil {
		log.Debugf("[CAN] %v", err)
		return
	}
	b.mu.Lock()
	callback := b.rxCallback
	b.mu.Unlock()
	if callback != nil {
		callback.Handle(frame)
	}
}

// Encode a standard frame e.g. "t60380123456789ABCDEF", without terminator
func EncodeFrame(frame can.Frame) string {
	kind := "t"
	if frame.ID&can.CanRtrFlag != 0 {
		kind = "r"
	}
	dlc := min(frame.DLC, 8)
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s%03X%d", kind, frame.ID&can.CanSffMask, dlc)
	if kind == "t" {
		for _, c := range frame.Data[:dlc] {
			fmt.Fprintf(&sb, "%02X", c)
		}
	}
	return sb.String()
}

// Decode a standard frame line, a trailing timestamp is ignored
func DecodeFrame(line string) (can.Frame, error) {
	frame := can.Frame{}
	if len(line) < 5 || (line[0] != 't' && line[0] != 'r') {
		return frame, fmt.Errorf("%w : %q", ErrMalformed, line)
	}
	id, err := strconv.ParseUint(line[1:4], 16, 32)
	if err != nil {
		return frame, fmt.Errorf("%w : %q", ErrMalformed, line)
	}
	dlc, err := strconv.ParseUint(line[4:5], 10, 8)
	if err != nil || dlc > 8 {
		return frame, fmt.Errorf("%w : %q", ErrMalformed, line)
	}
	frame.ID = uint32(id)
	frame.DLC = uint8(dlc)
	if line[0] == 'r' {
		frame.ID |= can.CanRtrFlag
		return frame, nil
	}
	data := line[5:]
	if len(data) < int(dlc)*2 {
		return frame, fmt.Errorf("%w : %q", ErrMalformed, line)
	}
	for i := 0; i < int(dlc); i++ {
		value, err := strconv.ParseUint(data[2*i:2*i+2], 16, 8)
		if err != nil {
			return frame, fmt.Errorf("%w : %q", ErrMalformed, line)
		}
		frame.Data[i] = uint8(value)
	}
	return frame, nil
}
