//go:build linux

// Package rawcan is a CAN bus on a raw SocketCAN socket, with kernel side
// filtering of the received identifiers.
package rawcan

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
	"unsafe"

	can "github.com/samsamfire/gocia402/pkg/can"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	SocketCANFrameSize = 16
	DefaultRcvTimeout  = 100 * time.Millisecond
)

func init() {
	can.RegisterInterface("rawcan", NewRawCanBus)
}

// Layout of struct can_frame
type canFrame struct {
	id   uint32
	dlc  uint8
	pad  uint8
	res0 uint8
	res1 uint8
	data [8]uint8
}

type RawCanBus struct {
	channel    string
	f          *os.File
	fd         int
	mu         sync.Mutex
	rxCallback can.FrameListener
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// Create a new raw CAN bus. This expects the CAN channel to be up.
// e.g. running "ip a" should show can0 or something similar.
func NewRawCanBus(channel string) (can.Bus, error) {
	iface, err := net.InterfaceByName(channel)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("failed to create CAN socket : %v", err)
	}
	tv := unix.NsecToTimeval(DefaultRcvTimeout.Nanoseconds())
	err = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to set read timeout %v", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: iface.Index}); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &RawCanBus{channel: channel, fd: fd}, nil
}

// "Connect" implementation of Bus interface
func (b *RawCanBus) Connect(...any) error {
	var ctx context.Context
	ctx, b.cancel = context.WithCancel(context.Background())
	b.f = os.NewFile(uintptr(b.fd), fmt.Sprintf("fd %d", b.fd))
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.processIncoming(ctx)
	}()
	log.Infof("[CAN] raw socket connected on %v", b.channel)
	return nil
}

// "Disconnect" implementation of Bus interface
func (b *RawCanBus) Disconnect() error {
	if b.cancel == nil {
		return nil
	}
	b.cancel()
	b.wg.Wait()
	return b.f.Close()
}

// "Send" implementation of Bus interface
func (b *RawCanBus) Send(frame can.Frame) error {
	raw := &canFrame{id: frame.ID, dlc: frame.DLC, pad: frame.Flags, data: frame.Data}
	n, err := b.f.Write((*(*[SocketCANFrameSize]byte)(unsafe.Pointer(raw)))[:])
	if err != nil {
		return err
	}
	if n != SocketCANFrameSize {
		return fmt.Errorf("short write on %v : %d bytes", b.channel, n)
	}
	return nil
}

// Receive frames until ctx is cancelled, reads time out periodically
func (b *RawCanBus) processIncoming(ctx context.Context) {
	buffer := make([]byte, SocketCANFrameSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := b.f.Read(buffer)
		if os.IsTimeout(err) {
			continue
		}
		if err != nil || n != SocketCANFrameSize {
			log.Infof("[CAN] exiting reception on %v : %v", b.channel, err)
			return
		}
		raw := (*canFrame)(unsafe.Pointer(&buffer[0]))
		b.mu.Lock()
		callback := b.rxCallback
		b.mu.Unlock()
		if callback != nil {
			callback.Handle(can.Frame{ID: raw.id, DLC: raw.dlc, Flags: raw.pad, Data: raw.data})
		}
	}
}

// "Subscribe" implementation of Bus interface
func (b *RawCanBus) Subscribe(rxCallback can.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rxCallback = rxCallback
	return nil
}

// Enable own reception on the bus. CAN be useful when testing for example
func (b *RawCanBus) SetReceiveOwn(enabled bool) error {
	enabledInt := 0
	if enabled {
		enabledInt = 1
	}
	return unix.SetsockoptInt(b.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_RECV_OWN_MSGS, enabledInt)
}

// Only receive the given identifiers (11 bit)
func (b *RawCanBus) SetFilters(ids []uint32) error {
	filters := make([]unix.CanFilter, 0, len(ids))
	for _, id := range ids {
		filters = append(filters, unix.CanFilter{Id: id, Mask: can.CanSffMask})
	}
	log.Debugf("[CAN] filtering %d identifiers on %v", len(ids), b.channel)
	return unix.SetsockoptCanRawFilter(b.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, filters)
}
