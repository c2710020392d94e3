// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package bgp

import (
	"fmt"
	"net/netip"
	"time"

	"ribd/router/routing"
)

// Configuration describes the configuration of the BGP sessions. It is
// shared by all the BGP instances of the daemon.
type Configuration struct {
	// Port is the TCP port used to connect to neighbors without an
	// explicit port.
	Port uint16 `validate:"min=1"`
	// DialTimeout is the timeout to establish a TCP connection
	DialTimeout time.Duration `validate:"min=100ms"`
	// OpenHoldTime is the hold time until an OPEN message is received
	OpenHoldTime time.Duration `validate:"min=1s"`
	// ConnectRetry defines how to retry failed connections
	ConnectRetry ConnectRetryConfiguration
}

// ConnectRetryConfiguration is the exponential backoff used between two
// connection attempts.
type ConnectRetryConfiguration struct {
	Initial time.Duration `validate:"min=100ms"`
	Maximum time.Duration `validate:"gtefield=Initial"`
}

// DefaultConfiguration represents the default configuration for BGP sessions.
func DefaultConfiguration() Configuration {
	return Configuration{
		Port:         179,
		DialTimeout:  5 * time.Second,
		OpenHoldTime: 4 * time.Minute,
		ConnectRetry: ConnectRetryConfiguration{
			Initial: 5 * time.Second,
			Maximum: 2 * time.Minute,
		},
	}
}

// Timers are the keepalive and hold timers, in seconds.
type Timers struct {
	Keepalive uint16 `json:"keepalive"`
	Hold      uint16 `json:"hold"`
}

// DefaultTimers are the timers used when none are configured.
func DefaultTimers() Timers {
	return Timers{Keepalive: 60, Hold: 180}
}

// Validate checks the timers are acceptable. A hold time of 0 disables
// keepalives.
func (t Timers) Validate() error {
	if t.Hold != 0 && t.Hold < 3 {
		return routing.Rejectf("hold time %d should be 0 or at least 3 seconds", t.Hold)
	}
	return nil
}

// keepaliveInterval returns the interval between two keepalives for a
// negotiated hold time. It is 0 when keepalives are disabled.
func (t Timers) keepaliveInterval(hold uint16) time.Duration {
	if hold == 0 {
		return 0
	}
	keepalive := t.Keepalive
	if keepalive == 0 || keepalive > hold/3 {
		keepalive = hold / 3
	}
	return time.Duration(keepalive) * time.Second
}

// Distances are the administrative distances of BGP routes.
type Distances struct {
	External uint8 `json:"external"`
	Internal uint8 `json:"internal"`
	// Local is kept for the configuration dump only: networks are not
	// originated as routes.
	Local uint8 `json:"local"`
}

// DefaultDistances returns the default distances for BGP routes.
func DefaultDistances() Distances {
	return Distances{External: 20, Internal: 200, Local: 200}
}

// Validate checks the distances are usable.
func (d Distances) Validate() error {
	if d.External == 0 || d.Internal == 0 || d.Local == 0 {
		return routing.Rejectf("BGP distances should be between 1 and 255")
	}
	return nil
}

// NeighborConfig is the configuration of a neighbor. Optional
// attributes are kept verbatim to be rendered back.
type NeighborConfig struct {
	Address netip.Addr
	// RemoteAS is 0 when inherited from the peer group.
	RemoteAS                   uint32
	Description                string
	Password                   string
	Port                       uint16
	Timers                     *Timers
	AllowASIn                  uint8
	RemovePrivateAS            bool
	PeerGroup                  string
	SoftReconfigurationInbound bool
	Shutdown                   bool
}

// DefaultAllowASIn is the number of occurrences of the local AS
// accepted when allowas-in is enabled without a count.
const DefaultAllowASIn = 3

func (nc NeighborConfig) validate() error {
	if !nc.Address.IsValid() || nc.Address.IsUnspecified() || nc.Address.IsMulticast() {
		return routing.Rejectf("invalid neighbor address %q", nc.Address)
	}
	if nc.Timers != nil {
		if err := nc.Timers.Validate(); err != nil {
			return err
		}
	}
	if nc.AllowASIn > 10 {
		return routing.Rejectf("allowas-in count %d should be between 1 and 10", nc.AllowASIn)
	}
	return nil
}

// sessionDiffers tells if the session should be restarted when
// switching from one configuration to the other.
func (nc NeighborConfig) sessionDiffers(other NeighborConfig) bool {
	timersDiffer := (nc.Timers == nil) != (other.Timers == nil) ||
		nc.Timers != nil && *nc.Timers != *other.Timers
	return timersDiffer ||
		nc.RemoteAS != other.RemoteAS ||
		nc.Password != other.Password ||
		nc.Port != other.Port ||
		nc.PeerGroup != other.PeerGroup ||
		nc.Shutdown != other.Shutdown
}

// PeerGroup is a set of neighbors sharing a configuration.
type PeerGroup struct {
	Name     string
	RemoteAS uint32
}

// isPrivateAS tells if an AS number is reserved for private use.
func isPrivateAS(asn uint32) bool {
	return (asn >= 64512 && asn <= 65534) || (asn >= 4200000000 && asn <= 4294967294)
}

// ValidateASN checks an AS number can be used.
func ValidateASN(asn uint32) error {
	if asn == 0 || asn == asTrans || asn == 65535 || asn == 4294967295 {
		return routing.Rejectf("invalid AS number %d", asn)
	}
	return nil
}

func (t Timers) String() string {
	return fmt.Sprintf("%d %d", t.Keepalive, t.Hold)
}
