// README: Tests for the coordinate source chains and bounded lookups.
package geo

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubGeocoder struct {
	c   Coordinate
	err error
}

func (s *stubGeocoder) Geocode(context.Context, string) (Coordinate, error) {
	return s.c, s.err
}

type stubDevice struct {
	c     Coordinate
	err   error
	delay time.Duration
}

func (s *stubDevice) Current(ctx context.Context) (Coordinate, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Coordinate{}, ctx.Err()
		}
	}
	return s.c, s.err
}

var testFallback = Coordinate{Lng: 121.5654, Lat: 25.0330}

func TestResolvePickupOrderFieldWins(t *testing.T) {
	r := NewResolver(&stubGeocoder{err: errors.New("boom")}, nil, testFallback, nil)
	orderLoc := Coordinate{Lng: 72.8777, Lat: 19.0760}

	got := r.ResolvePickup(context.Background(), orderLoc, PickupContext{
		SellerLocation: Coordinate{Lng: 1, Lat: 1},
	})
	if got.Lng != orderLoc.Lng || got.Provenance != ProvenanceOrderField {
		t.Fatalf("got %+v, want order field", got)
	}
}

func TestResolvePickupChain(t *testing.T) {
	seller := Coordinate{Lng: 121.55, Lat: 25.04}
	geocoded := Coordinate{Lng: 121.56, Lat: 25.05}

	cases := []struct {
		name     string
		pc       PickupContext
		geocoder Geocoder
		wantProv Provenance
	}{
		{"seller cache", PickupContext{SellerLocation: seller, SellerAddress: "x"}, &stubGeocoder{c: geocoded}, ProvenanceCached},
		{"geocoded", PickupContext{SellerAddress: "x"}, &stubGeocoder{c: geocoded}, ProvenanceGeocoded},
		{"geocoder error falls back", PickupContext{SellerAddress: "x"}, &stubGeocoder{err: errors.New("quota")}, ProvenanceFallback},
		{"no sources falls back", PickupContext{}, nil, ProvenanceFallback},
	}
	for _, tc := range cases {
		r := NewResolver(tc.geocoder, nil, testFallback, nil)
		got := r.ResolvePickup(context.Background(), Coordinate{}, tc.pc)
		if !got.Valid() {
			t.Errorf("%s: resolved invalid coordinate %+v", tc.name, got)
		}
		if got.Provenance != tc.wantProv {
			t.Errorf("%s: provenance = %s, want %s", tc.name, got.Provenance, tc.wantProv)
		}
	}
}

func TestResolveDeliveryChain(t *testing.T) {
	device := Coordinate{Lng: 121.5, Lat: 25.0}
	profile := Coordinate{Lng: 121.4, Lat: 24.9}

	cases := []struct {
		name     string
		device   DeviceLocator
		dc       DeliveryContext
		wantProv Provenance
	}{
		{"device", &stubDevice{c: device}, DeliveryContext{ProfileLocation: profile}, ProvenanceDevice},
		{"permission denied falls to profile", &stubDevice{err: errors.New("denied")}, DeliveryContext{ProfileLocation: profile}, ProvenanceProfile},
		{"all exhausted falls back", &stubDevice{err: errors.New("denied")}, DeliveryContext{}, ProvenanceFallback},
	}
	for _, tc := range cases {
		r := NewResolver(nil, tc.device, testFallback, nil)
		got := r.ResolveDelivery(context.Background(), Coordinate{}, tc.dc)
		if !got.Valid() {
			t.Errorf("%s: resolved invalid coordinate %+v", tc.name, got)
		}
		if got.Provenance != tc.wantProv {
			t.Errorf("%s: provenance = %s, want %s", tc.name, got.Provenance, tc.wantProv)
		}
	}
}

func TestResolveDeliveryDeviceTimeout(t *testing.T) {
	slow := &stubDevice{c: Coordinate{Lng: 121.5, Lat: 25.0}, delay: time.Second}
	r := NewResolver(nil, slow, testFallback, nil, WithTimeout(20*time.Millisecond))

	start := time.Now()
	got := r.ResolveDelivery(context.Background(), Coordinate{}, DeliveryContext{})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("resolution blocked for %v", elapsed)
	}
	if got.Provenance != ProvenanceFallback {
		t.Fatalf("provenance = %s, want fallback after timeout", got.Provenance)
	}
}

func TestResolveDeliveryUsesCachedDevicePosition(t *testing.T) {
	device := &stubDevice{c: Coordinate{Lng: 121.5, Lat: 25.0}}
	r := NewResolver(nil, device, testFallback, nil)

	// First resolution caches the device position.
	_ = r.ResolveDelivery(context.Background(), Coordinate{}, DeliveryContext{})

	// Device now fails; the cached position is still usable.
	device.err = errors.New("denied")
	device.c = Coordinate{}
	got := r.ResolveDelivery(context.Background(), Coordinate{}, DeliveryContext{})
	if got.Provenance != ProvenanceDevice {
		t.Fatalf("provenance = %s, want cached device", got.Provenance)
	}
	if got.Lng != 121.5 {
		t.Fatalf("got %+v, want cached position", got)
	}
}
