package hardware

import (
	"context"

	"github.com/enbility/zeroconf/v3"
)

// Browser is the mDNS browse feed. Browse blocks until ctx is cancelled,
// calling found and removed from its own goroutine.
type Browser interface {
	Browse(ctx context.Context, service, domain string, found, removed func(ServiceEntry)) error
}

// ZeroconfBrowser browses with enbility/zeroconf.
type ZeroconfBrowser struct{}

// Browse implements Browser.
func (ZeroconfBrowser) Browse(ctx context.Context, service, domain string, found, removed func(ServiceEntry)) error {
	if domain == "" {
		domain = "local."
	}
	entries := make(chan *zeroconf.ServiceEntry)
	gone := make(chan *zeroconf.ServiceEntry)

	errc := make(chan error, 1)
	go func() {
		errc <- zeroconf.Browse(ctx, service, domain, entries, gone)
	}()

	for entries != nil || gone != nil {
		select {
		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			found(fromZeroconf(entry))
		case entry, ok := <-gone:
			if !ok {
				gone = nil
				continue
			}
			removed(fromZeroconf(entry))
		case err := <-errc:
			if err != nil && ctx.Err() == nil {
				return err
			}
			errc = nil
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func fromZeroconf(e *zeroconf.ServiceEntry) ServiceEntry {
	return ServiceEntry{
		Instance: e.Instance,
		Service:  e.Service,
		Domain:   e.Domain,
		HostName: e.HostName,
		Port:     e.Port,
		IPv4:     e.AddrIPv4,
		IPv6:     e.AddrIPv6,
		Text:     e.Text,
	}
}
