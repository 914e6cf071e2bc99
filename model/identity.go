// Package model holds the data types shared across the printer connectivity
// core: discovered identities, connection configuration, the wire-agnostic
// command/response envelopes, and the merged status snapshot.
package model

import "fmt"

// ProtocolKind identifies which SDCP transport dialect a printer speaks.
type ProtocolKind string

const (
	ProtocolWebSocketSDCP ProtocolKind = "websocket-sdcp"
	ProtocolMqttCC2       ProtocolKind = "mqtt-cc2"
	ProtocolMqttLegacy    ProtocolKind = "mqtt-legacy"
)

// PrinterFamily distinguishes resin (MSLA) from FDM printers.
type PrinterFamily string

const (
	FamilyResin PrinterFamily = "resin"
	FamilyFDM   PrinterFamily = "fdm"
)

// Capability tags describe optional features a printer advertises.
const (
	CapabilityVideo     = "video"
	CapabilityAMS       = "ams"
	CapabilityThumbnail = "thumbnail"
	CapabilityCloudOnly = "cloud-only"
)

// Identity is immutable after discovery.
type Identity struct {
	Name             string
	Model            string
	Serial           string
	IPAddress        string
	Firmware         string
	ProtocolVersion  string
	ProtocolKind     ProtocolKind
	PrinterFamily    PrinterFamily
	Capabilities     []string
}

// HasCapability reports whether the identity advertises the given tag.
func (id Identity) HasCapability(tag string) bool {
	for _, c := range id.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

func (id Identity) String() string {
	return fmt.Sprintf("%s (%s) @ %s [%s/%s]", id.Name, id.Model, id.IPAddress, id.ProtocolKind, id.PrinterFamily)
}

// ConnectionConfig is mutable, bound to a configured device entry.
type ConnectionConfig struct {
	Identity       Identity
	ProxyEnabled   bool
	ProxyWsPort    int
	ProxyVideoPort int
	AccessCode     string
}

// familyPrefixes maps known model-string prefixes to a PrinterFamily.
// Unknown prefixes default to FamilyFDM per spec.md §4.2.
var familyPrefixes = []struct {
	prefix string
	family PrinterFamily
}{
	{"Saturn", FamilyResin},
	{"Mars", FamilyResin},
	{"Jupiter", FamilyResin},
	{"Centauri", FamilyFDM},
	{"Neptune", FamilyFDM},
}

// InferFamily guesses a printer's family from its model string.
func InferFamily(model string) PrinterFamily {
	for _, p := range familyPrefixes {
		if len(model) >= len(p.prefix) && model[:len(p.prefix)] == p.prefix {
			return p.family
		}
	}
	return FamilyFDM
}
