// README: Resolver derives pickup/delivery coordinates from a prioritized
// source chain with bounded external lookups.
package geo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Geocoder turns a street address into a coordinate. External, may fail
// or time out.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Coordinate, error)
}

// DeviceLocator reports the observer's current device position. External,
// permission-gated, may fail or time out.
type DeviceLocator interface {
	Current(ctx context.Context) (Coordinate, error)
}

// PickupContext carries the secondary sources for pickup resolution.
type PickupContext struct {
	SellerLocation Coordinate // cached location of the selling entity
	SellerAddress  string     // geocodable address, used if the cache misses
}

// DeliveryContext carries the secondary sources for delivery resolution.
type DeliveryContext struct {
	ProfileLocation Coordinate // buyer's stored profile location
}

var errSourceUnavailable = errors.New("geo: source unavailable")

// Resolver walks the source chains. Every external call is bounded by a
// timeout and falls through to the next source on failure; resolution
// never blocks indefinitely and never returns an invalid coordinate
// (the static fallback terminates both chains).
type Resolver struct {
	geocoder Geocoder
	device   DeviceLocator
	fallback Coordinate
	timeout  time.Duration
	log      *zap.Logger

	// gen invalidates late results from abandoned lookups.
	gen atomic.Uint64

	mu         sync.Mutex
	lastDevice Coordinate
}

type ResolverOption func(*Resolver)

func WithTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.timeout = d }
}

func NewResolver(geocoder Geocoder, device DeviceLocator, fallback Coordinate, log *zap.Logger, opts ...ResolverOption) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Resolver{
		geocoder: geocoder,
		device:   device,
		fallback: fallback.WithProvenance(ProvenanceFallback),
		timeout:  5 * time.Second,
		log:      log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolvePickup returns a valid pickup coordinate for the order field
// following the chain: order field, seller cache, geocoded address,
// static fallback.
func (r *Resolver) ResolvePickup(ctx context.Context, orderLoc Coordinate, pc PickupContext) Coordinate {
	if orderLoc.Valid() {
		return orderLoc.WithProvenance(ProvenanceOrderField)
	}
	if pc.SellerLocation.Valid() {
		return pc.SellerLocation.WithProvenance(ProvenanceCached)
	}
	if r.geocoder != nil && pc.SellerAddress != "" {
		c, err := r.bounded(ctx, func(cctx context.Context) (Coordinate, error) {
			return r.geocoder.Geocode(cctx, pc.SellerAddress)
		}, nil)
		if err == nil && c.Valid() {
			return c.WithProvenance(ProvenanceGeocoded)
		}
		r.log.Debug("geocode source failed", zap.Error(err))
	}
	return r.fallback
}

// ResolveDelivery returns a valid delivery coordinate following the chain:
// order field, device position, stored profile location, static fallback.
func (r *Resolver) ResolveDelivery(ctx context.Context, orderLoc Coordinate, dc DeliveryContext) Coordinate {
	if orderLoc.Valid() {
		return orderLoc.WithProvenance(ProvenanceOrderField)
	}
	if r.device != nil {
		c, err := r.boundedDevice(ctx)
		if err == nil && c.Valid() {
			return c.WithProvenance(ProvenanceDevice)
		}
		r.log.Debug("device source failed", zap.Error(err))
	}
	if dc.ProfileLocation.Valid() {
		return dc.ProfileLocation.WithProvenance(ProvenanceProfile)
	}
	return r.fallback
}

// bounded runs fn with the resolver timeout. A lookup whose timeout fires
// is abandoned, not cancelled midflight; its eventual late result is fed to
// onLate only if the generation is still current, otherwise discarded.
func (r *Resolver) bounded(ctx context.Context, fn func(context.Context) (Coordinate, error), onLate func(Coordinate)) (Coordinate, error) {
	gen := r.gen.Add(1)
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		c   Coordinate
		err error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := fn(cctx)
		ch <- result{c, err}
	}()

	select {
	case out := <-ch:
		return out.c, out.err
	case <-cctx.Done():
		go func() {
			out := <-ch
			if onLate != nil && out.err == nil && out.c.Valid() && gen == r.gen.Load() {
				onLate(out.c)
			}
		}()
		return Coordinate{}, errSourceUnavailable
	}
}

func (r *Resolver) boundedDevice(ctx context.Context) (Coordinate, error) {
	c, err := r.bounded(ctx, func(cctx context.Context) (Coordinate, error) {
		return r.device.Current(cctx)
	}, r.cacheDevice)
	if err == nil && c.Valid() {
		r.cacheDevice(c)
		return c, nil
	}
	r.mu.Lock()
	cached := r.lastDevice
	r.mu.Unlock()
	if cached.Valid() {
		return cached, nil
	}
	return Coordinate{}, err
}

func (r *Resolver) cacheDevice(c Coordinate) {
	r.mu.Lock()
	r.lastDevice = c
	r.mu.Unlock()
}
