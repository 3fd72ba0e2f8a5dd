// Package portmap deterministically maps a room name to a base UDP port
// and describes the sequential-fallback strategy used when that port is
// already bound.
package portmap

import (
	"crypto/md5"
	"encoding/binary"
)

const (
	// BasePort is the low end of the room port range.
	BasePort = 12000

	// PortRange is the number of ports the base port can fall into;
	// port(room) is always in [BasePort, BasePort+PortRange).
	PortRange = 1000

	// MaxFallbackAttempts bounds the sequential-fallback search: this
	// many ports in total (the base port and its successors) are tried
	// before the join attempt fails with BindExhausted.
	MaxFallbackAttempts = 5
)

// Port computes the deterministic base port for a room name: the first
// 16 bits of MD5(room-name-utf8), interpreted big-endian, modulo
// PortRange, offset from BasePort.
func Port(roomName string) int {
	sum := md5.Sum([]byte(roomName))
	first16 := binary.BigEndian.Uint16(sum[:2])
	return BasePort + int(first16)%PortRange
}

// Candidates returns the base port followed by its sequential fallback
// candidates, in the order they should be tried at bind time.
func Candidates(roomName string) []int {
	base := Port(roomName)
	out := make([]int, 0, MaxFallbackAttempts)
	for i := 0; i < MaxFallbackAttempts; i++ {
		out = append(out, base+i)
	}
	return out
}
