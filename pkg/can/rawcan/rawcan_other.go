//go:build !linux

// Raw CAN sockets are only available on linux, the interface is not registered elsewhere.
package rawcan
