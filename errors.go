package cia402

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalArgument = errors.New("error in function arguments")
	ErrWrongPhase      = errors.New("command can't be processed in the current lifecycle phase")
	ErrNotAcknowledged = errors.New("object write was not acknowledged")
	ErrUnknownField    = errors.New("unknown field identifier")
	ErrRankNotAssigned = errors.New("no mapping rank assigned for direction")
	ErrNotDetected     = errors.New("slave not detected on the network")
	ErrZeroPulses      = errors.New("encoder pulses per revolution read as zero")
	ErrImageBounds     = errors.New("field lies outside of the process image")
	ErrModeMismatch    = errors.New("modes of operation read back does not match")
)

// ConfigError is returned by configuration steps (rank assignment, mapping
// negotiation, driver initialization). It is fatal to the configuration pass:
// the mapping is undefined afterwards and configuration must restart.
type ConfigError struct {
	Step string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Step, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// AccessError is returned by a confirmed object access that was not
// acknowledged, or by an image access outside of the buffer.
// It is recoverable, retrying is up to the caller.
type AccessError struct {
	Index    uint16
	Subindex uint8
	Err      error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("access x%x:x%x: %v", e.Index, e.Subindex, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// NewConfigError wraps err unless it already is a [ConfigError]
func NewConfigError(step string, err error) error {
	if err == nil {
		return nil
	}
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return err
	}
	return &ConfigError{Step: step, Err: err}
}

// NewAccessError reports a confirmed access to index:subindex that failed.
// The returned error matches both [ErrNotAcknowledged] and the master's own error.
func NewAccessError(index uint16, subindex uint8, err error) *AccessError {
	return &AccessError{Index: index, Subindex: subindex, Err: fmt.Errorf("%w : %w", ErrNotAcknowledged, err)}
}
