package hardware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// inlinePoster runs posted work on the caller's goroutine, serialised.
type inlinePoster struct {
	mu sync.Mutex
}

func (p *inlinePoster) Post(fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
	return true
}

type tickRecorder struct {
	mu    sync.Mutex
	ticks int
}

func (r *tickRecorder) OnTick(time.Time) {
	r.mu.Lock()
	r.ticks++
	r.mu.Unlock()
}

func (r *tickRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks
}

type panickyTicker struct{}

func (panickyTicker) OnTick(time.Time) { panic("boom") }

type advRecorder struct {
	ch chan Advertisement
}

func (r *advRecorder) OnAdvertisement(adv Advertisement) { r.ch <- adv }

type serviceRecorder struct {
	found   chan ServiceEntry
	removed chan ServiceEntry
}

func (r *serviceRecorder) OnServiceDiscovered(e ServiceEntry) { r.found <- e }
func (r *serviceRecorder) OnServiceRemoved(e ServiceEntry)    { r.removed <- e }

type fakeScanner struct {
	adv Advertisement
}

func (s *fakeScanner) Scan(ctx context.Context, fn func(Advertisement)) error {
	fn(s.adv)
	<-ctx.Done()
	return nil
}

type fakeBrowser struct{}

func (fakeBrowser) Browse(ctx context.Context, service, domain string, found, removed func(ServiceEntry)) error {
	e := ServiceEntry{Instance: "lamp", Service: service, Domain: domain, Port: 80}
	found(e)
	removed(e)
	<-ctx.Done()
	return nil
}

func TestRegisterValidation(t *testing.T) {
	b := NewBroker(&inlinePoster{}, Options{})

	if _, err := b.Register("p1", []Resource{"laser"}, nil); !errors.Is(err, ErrUnknownResource) {
		t.Errorf("unknown resource: err = %v, want ErrUnknownResource", err)
	}
	if _, err := b.Register("p1", []Resource{Network}, nil); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := b.Register("p1", nil, nil); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("duplicate: err = %v, want ErrAlreadyRegistered", err)
	}

	b.Unregister("p1")
	if _, err := b.Register("p1", nil, nil); err != nil {
		t.Errorf("Register() after Unregister error = %v", err)
	}
}

func TestAccessScoping(t *testing.T) {
	b := NewBroker(&inlinePoster{}, Options{})

	access, err := b.Register("p1", []Resource{Network, MQTT, BluetoothLE}, nil)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, err := access.Network(); err != nil {
		t.Errorf("Network() error = %v", err)
	}
	if _, err := access.MQTT(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("MQTT() without client: err = %v, want ErrUnavailable", err)
	}
	if err := access.Require(Timer); !errors.Is(err, ErrNotDeclared) {
		t.Errorf("Require(timer) err = %v, want ErrNotDeclared", err)
	}

	missing := access.Unavailable()
	if len(missing) != 2 || missing[0] != BluetoothLE || missing[1] != MQTT {
		t.Errorf("Unavailable() = %v, want [bluetooth-le mqtt]", missing)
	}

	other, _ := b.Register("p2", nil, nil)
	if _, err := other.Network(); !errors.Is(err, ErrNotDeclared) {
		t.Errorf("undeclared Network() err = %v, want ErrNotDeclared", err)
	}
}

func TestFanOutOnlyToDeclaredConsumers(t *testing.T) {
	b := NewBroker(&inlinePoster{}, Options{TickInterval: time.Hour})

	declared := &tickRecorder{}
	undeclared := &tickRecorder{}
	if _, err := b.Register("a-panics", []Resource{Timer}, panickyTicker{}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Register("b-ticks", []Resource{Timer}, declared); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Register("c-silent", nil, undeclared); err != nil {
		t.Fatal(err)
	}

	b.fanOutTick(time.Now())

	if declared.count() != 1 {
		t.Errorf("declared consumer ticks = %d, want 1", declared.count())
	}
	if undeclared.count() != 0 {
		t.Errorf("undeclared consumer ticks = %d, want 0", undeclared.count())
	}
}

func TestStartFeeds(t *testing.T) {
	ticks := &tickRecorder{}
	advs := &advRecorder{ch: make(chan Advertisement, 1)}
	services := &serviceRecorder{
		found:   make(chan ServiceEntry, 1),
		removed: make(chan ServiceEntry, 1),
	}

	b := NewBroker(&inlinePoster{}, Options{
		TickInterval: 5 * time.Millisecond,
		Scanner:      &fakeScanner{adv: Advertisement{Address: "AA:BB:CC:DD:EE:FF", RSSI: -60}},
		Browser:      fakeBrowser{},
		ServiceTypes: []string{"_shelly._tcp"},
		Domain:       "local.",
	})
	for id, reg := range map[string]struct {
		res      []Resource
		consumer any
	}{
		"ticks":    {[]Resource{Timer}, ticks},
		"ble":      {[]Resource{BluetoothLE}, advs},
		"services": {[]Resource{Discovery}, services},
	} {
		if _, err := b.Register(id, reg.res, reg.consumer); err != nil {
			t.Fatal(err)
		}
	}

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	select {
	case adv := <-advs.ch:
		if adv.Address != "AA:BB:CC:DD:EE:FF" {
			t.Errorf("advertisement address = %q", adv.Address)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no advertisement delivered")
	}

	select {
	case e := <-services.found:
		if e.Service != "_shelly._tcp" || e.Domain != "local." {
			t.Errorf("found entry = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no discovered service delivered")
	}
	select {
	case <-services.removed:
	case <-time.After(2 * time.Second):
		t.Fatal("no removed service delivered")
	}

	deadline := time.Now().Add(2 * time.Second)
	for ticks.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ticks.count() == 0 {
		t.Error("no ticks delivered")
	}
}

func TestServiceEntryTXT(t *testing.T) {
	e := ServiceEntry{Text: []string{"id=shelly1-abc", "gen=2", "flag"}}
	txt := e.TXT()
	if txt["id"] != "shelly1-abc" || txt["gen"] != "2" {
		t.Errorf("TXT() = %v", txt)
	}
	if v, ok := txt["flag"]; !ok || v != "" {
		t.Errorf("bare record: %q, %v", v, ok)
	}
}
