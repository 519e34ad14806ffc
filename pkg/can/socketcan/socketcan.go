// Package socketcan is a CAN bus on a linux SocketCAN interface, using
// https://github.com/brutella/can for the socket.
package socketcan

import (
	"fmt"
	"sync"

	sockcan "github.com/brutella/can"
	can "github.com/samsamfire/gocia402/pkg/can"
	log "github.com/sirupsen/logrus"
)

func init() {
	can.RegisterInterface("socketcan", NewSocketCanBus)
}

type SocketcanBus struct {
	bus        *sockcan.Bus
	name       string
	mu         sync.Mutex
	rxCallback can.FrameListener
	connected  bool
}

// Open the interface e.g. "can0"
func NewSocketCanBus(name string) (can.Bus, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(name)
	if err != nil {
		return nil, fmt.Errorf("socketcan : %s : %w", name, err)
	}
	adapter := &SocketcanBus{bus: bus, name: name}
	bus.Subscribe(adapter)
	return adapter, nil
}

// "Connect" implementation of Bus interface.
// Reception runs until [SocketcanBus.Disconnect].
func (b *SocketcanBus) Connect(...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		return nil
	}
	b.connected = true
	go func() {
		err := b.bus.ConnectAndPublish()
		b.mu.Lock()
		connected := b.connected
		b.connected = false
		b.mu.Unlock()
		if err != nil && connected {
			log.Warnf("[CAN] socketcan %s reception stopped : %v", b.name, err)
		}
	}()
	return nil
}

// "Disconnect" implementation of Bus interface
func (b *SocketcanBus) Disconnect() error {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	return b.bus.Disconnect()
}

// "Send" implementation of Bus interface
func (b *SocketcanBus) Send(frame can.Frame) error {
	raw, err := toSocketcan(frame)
	if err != nil {
		return err
	}
	return b.bus.Publish(raw)
}

// "Subscribe" implementation of Bus interface
func (b *SocketcanBus) Subscribe(rxCallback can.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rxCallback = rxCallback
	return nil
}

// brutella/can specific "Handle" implementation, called from the reception goroutine
func (b *SocketcanBus) Handle(frame sockcan.Frame) {
	b.mu.Lock()
	callback := b.rxCallback
	b.mu.Unlock()
	if callback == nil {
		return
	}
	callback.Handle(fromSocketcan(frame))
}

func toSocketcan(frame can.Frame) (sockcan.Frame, error) {
	if frame.DLC > 8 {
		return sockcan.Frame{}, fmt.Errorf("socketcan : invalid dlc %d for x%x", frame.DLC, frame.ID)
	}
	return sockcan.Frame{ID: frame.ID, Length: frame.DLC, Flags: frame.Flags, Data: frame.Data}, nil
}

func fromSocketcan(frame sockcan.Frame) can.Frame {
	return can.Frame{ID: frame.ID, DLC: min(frame.Length, 8), Flags: frame.Flags, Data: frame.Data}
}
