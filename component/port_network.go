package component

import "fmt"

// NetworkPort declares a TCP or UDP listener binding, used by components
// that expose a socket (the metrics endpoint, a future socket input).
// Two components must never claim the same binding.
type NetworkPort struct {
	Protocol string `json:"protocol"` // "tcp" or "udp"
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

// ResourceID identifies the binding for registry conflict checks.
func (n NetworkPort) ResourceID() string {
	return fmt.Sprintf("%s:%s:%d", n.Protocol, n.Host, n.Port)
}

// IsExclusive returns true; a listener binding belongs to one component.
func (n NetworkPort) IsExclusive() bool {
	return true
}

// Type returns the port type identifier.
func (n NetworkPort) Type() string {
	return "network"
}
