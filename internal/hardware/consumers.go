package hardware

import (
	"net"
	"strings"
	"time"
)

// TickConsumer receives the periodic tick of the timer resource.
type TickConsumer interface {
	OnTick(now time.Time)
}

// BLEConsumer receives advertisements seen by the shared BLE central.
type BLEConsumer interface {
	OnAdvertisement(adv Advertisement)
}

// DiscoveryConsumer receives mDNS services from the discovery feed.
type DiscoveryConsumer interface {
	OnServiceDiscovered(svc ServiceEntry)
	OnServiceRemoved(svc ServiceEntry)
}

// Advertisement is one BLE advertisement or scan response.
type Advertisement struct {
	Address string
	Name    string
	RSSI    int16
	UUIDs   []string

	// ManufacturerData is keyed by company identifier.
	ManufacturerData map[uint16][]byte
	// ServiceData is keyed by service UUID.
	ServiceData map[string][]byte
}

// clone copies adv so consumers never share maps with the scanner.
func (adv *Advertisement) clone() Advertisement {
	out := *adv
	out.UUIDs = append([]string(nil), adv.UUIDs...)
	if adv.ManufacturerData != nil {
		out.ManufacturerData = make(map[uint16][]byte, len(adv.ManufacturerData))
		for k, v := range adv.ManufacturerData {
			out.ManufacturerData[k] = v
		}
	}
	if adv.ServiceData != nil {
		out.ServiceData = make(map[string][]byte, len(adv.ServiceData))
		for k, v := range adv.ServiceData {
			out.ServiceData[k] = v
		}
	}
	return out
}

// ServiceEntry is an mDNS service instance.
type ServiceEntry struct {
	Instance string
	Service  string
	Domain   string
	HostName string
	Port     int
	IPv4     []net.IP
	IPv6     []net.IP
	Text     []string
}

// TXT returns the TXT records as key/value pairs. Records without "="
// map to "".
func (e ServiceEntry) TXT() map[string]string {
	out := make(map[string]string, len(e.Text))
	for _, rec := range e.Text {
		key, value, _ := strings.Cut(rec, "=")
		out[key] = value
	}
	return out
}
