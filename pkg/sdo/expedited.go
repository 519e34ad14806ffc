package sdo

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	ClientBaseId = 0x600
	ServerBaseId = 0x580
)

// Command specifiers of the expedited transfers.
// Command byte is ccs[7..5] n[3..2] e[1] s[0]
const (
	ccsDownloadInitiate = 1
	ccsUploadInitiate   = 2
	scsUploadInitiate   = 2
	scsDownloadInitiate = 3
	csAbort             = 4
)

var (
	ErrDataTooLong    = errors.New("expedited transfer is limited to 4 bytes")
	ErrNotExpedited   = errors.New("segmented transfer not supported")
	ErrUnexpectedResp = errors.New("unexpected server response")
)

// Expedited initiate download request (write of up to 4 bytes)
func NewDownloadRequest(index uint16, subindex uint8, data []byte) ([8]byte, error) {
	var raw [8]byte
	if len(data) == 0 || len(data) > 4 {
		return raw, ErrDataTooLong
	}
	n := uint8(4 - len(data))
	raw[0] = ccsDownloadInitiate<<5 | (n&0x3)<<2 | 1<<1 | 1
	binary.LittleEndian.PutUint16(raw[1:3], index)
	raw[3] = subindex
	copy(raw[4:], data)
	return raw, nil
}

// Initiate upload request (read)
func NewUploadRequest(index uint16, subindex uint8) [8]byte {
	var raw [8]byte
	raw[0] = ccsUploadInitiate << 5
	binary.LittleEndian.PutUint16(raw[1:3], index)
	raw[3] = subindex
	return raw
}

// Abort transfer frame
func NewAbort(index uint16, subindex uint8, code AbortCode) [8]byte {
	var raw [8]byte
	raw[0] = csAbort << 5
	binary.LittleEndian.PutUint16(raw[1:3], index)
	raw[3] = subindex
	binary.LittleEndian.PutUint32(raw[4:], uint32(code))
	return raw
}

// Multiplexer (index and subindex) of a request or response
func Multiplexer(raw [8]byte) (uint16, uint8) {
	return binary.LittleEndian.Uint16(raw[1:3]), raw[3]
}

// Parse a server response to an expedited download.
// An abort frame is returned as an AbortCode error.
func ParseDownloadResponse(raw [8]byte) error {
	switch raw[0] >> 5 {
	case csAbort:
		return AbortCode(binary.LittleEndian.Uint32(raw[4:]))
	case scsDownloadInitiate:
		return nil
	default:
		return fmt.Errorf("%w : cmd x%x", ErrUnexpectedResp, raw[0])
	}
}

// Parse a server response to an upload request and return the data
func ParseUploadResponse(raw [8]byte) ([]byte, error) {
	switch raw[0] >> 5 {
	case csAbort:
		return nil, AbortCode(binary.LittleEndian.Uint32(raw[4:]))
	case scsUploadInitiate:
	default:
		return nil, fmt.Errorf("%w : cmd x%x", ErrUnexpectedResp, raw[0])
	}
	expedited := raw[0]&(1<<1) != 0
	sizeIndicated := raw[0]&1 != 0
	if !expedited {
		return nil, ErrNotExpedited
	}
	size := 4
	if sizeIndicated {
		size = 4 - int((raw[0]>>2)&0x3)
	}
	data := make([]byte, size)
	copy(data, raw[4:4+size])
	return data, nil
}

// Server side: build the response to a download request
func NewDownloadResponse(index uint16, subindex uint8) [8]byte {
	var raw [8]byte
	raw[0] = scsDownloadInitiate << 5
	binary.LittleEndian.PutUint16(raw[1:3], index)
	raw[3] = subindex
	return raw
}

// Server side: build an expedited upload response
func NewUploadResponse(index uint16, subindex uint8, data []byte) ([8]byte, error) {
	var raw [8]byte
	if len(data) == 0 || len(data) > 4 {
		return raw, ErrDataTooLong
	}
	n := uint8(4 - len(data))
	raw[0] = scsUploadInitiate<<5 | (n&0x3)<<2 | 1<<1 | 1
	binary.LittleEndian.PutUint16(raw[1:3], index)
	raw[3] = subindex
	copy(raw[4:], data)
	return raw, nil
}
