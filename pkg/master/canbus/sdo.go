package canbus

import (
	"fmt"
	"time"

	can "github.com/samsamfire/gocia402/pkg/can"
	"github.com/samsamfire/gocia402/pkg/sdo"
	log "github.com/sirupsen/logrus"
)

// Run one expedited transfer, transfers are serialized
func (m *Master) transfer(slaveId uint16, index uint16, subindex uint8, request [8]byte) ([8]byte, error) {
	m.sdoMu.Lock()
	defer m.sdoMu.Unlock()

	response := make(chan [8]byte, 1)
	m.mu.Lock()
	m.pending = &pendingTransfer{
		cobId:    sdo.ServerBaseId + uint32(slaveId),
		index:    index,
		subindex: subindex,
		response: response,
	}
	timeout := m.sdoTimeout
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.pending = nil
		m.mu.Unlock()
	}()

	var raw [8]byte
	err := m.bus.Send(can.NewFrame(sdo.ClientBaseId+uint32(slaveId), request[:]))
	if err != nil {
		return raw, err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case raw = <-response:
		return raw, nil
	case <-timer.C:
		log.Warnf("[CANBUS][x%x] sdo x%x:x%x timed out after %v", slaveId, index, subindex, timeout)
		abort := sdo.NewAbort(index, subindex, sdo.AbortTimeout)
		_ = m.bus.Send(can.NewFrame(sdo.ClientBaseId+uint32(slaveId), abort[:]))
		return raw, sdo.AbortTimeout
	}
}

// Read an object with an expedited upload, size is only informative
func (m *Master) ReadObject(slaveId uint16, index uint16, subindex uint8, size int) ([]byte, error) {
	raw, err := m.transfer(slaveId, index, subindex, sdo.NewUploadRequest(index, subindex))
	if err != nil {
		return nil, err
	}
	data, err := sdo.ParseUploadResponse(raw)
	if err != nil {
		log.Debugf("[CANBUS][x%x] read x%x:x%x failed : %v", slaveId, index, subindex, err)
		return nil, err
	}
	if size > 0 && len(data) != size {
		log.Debugf("[CANBUS][x%x] read x%x:x%x returned %d bytes, expected %d", slaveId, index, subindex, len(data), size)
	}
	return data, nil
}

// Write an object with an expedited download (1 to 4 bytes)
func (m *Master) WriteObject(slaveId uint16, index uint16, subindex uint8, data []byte) error {
	request, err := sdo.NewDownloadRequest(index, subindex, data)
	if err != nil {
		return fmt.Errorf("x%x:x%x : %w", index, subindex, err)
	}
	raw, err := m.transfer(slaveId, index, subindex, request)
	if err != nil {
		return err
	}
	err = sdo.ParseDownloadResponse(raw)
	if err != nil {
		log.Debugf("[CANBUS][x%x] write x%x:x%x failed : %v", slaveId, index, subindex, err)
	}
	return err
}
