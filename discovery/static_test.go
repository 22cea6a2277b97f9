package discovery

import "testing"

func TestStaticAdapterSeedsDiscoveries(t *testing.T) {
	a := NewStaticAdapter(map[string]string{
		"deadbeef00112233": "10.0.0.5:9001",
	})
	defer a.Close()

	ev := <-a.Events()
	pd, ok := ev.(PeerDiscovered)
	if !ok {
		t.Fatalf("event type = %T, want PeerDiscovered", ev)
	}
	if pd.PeerID != "deadbeef00112233" || pd.Endpoint != "10.0.0.5:9001" {
		t.Errorf("event = %+v, want seeded peer", pd)
	}
}

func TestStaticAdapterAddAndRemove(t *testing.T) {
	a := NewStaticAdapter(nil)
	defer a.Close()

	a.Add("aaaa", "192.168.1.2:9001")
	ev := <-a.Events()
	if pd, ok := ev.(PeerDiscovered); !ok || pd.PeerID != "aaaa" {
		t.Fatalf("event = %+v, want PeerDiscovered{aaaa}", ev)
	}

	a.Remove("aaaa")
	ev = <-a.Events()
	if pl, ok := ev.(PeerLost); !ok || pl.PeerID != "aaaa" {
		t.Fatalf("event = %+v, want PeerLost{aaaa}", ev)
	}
}

func TestStaticAdapterCloseStopsDelivery(t *testing.T) {
	a := NewStaticAdapter(nil)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	a.Add("ignored", "1.2.3.4:9000") // must not panic after close

	if _, open := <-a.Events(); open {
		t.Error("Events() channel should be closed after Close")
	}
}
