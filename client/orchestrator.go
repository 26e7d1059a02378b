// Package client keeps a map of nearby toilets up to date as the user moves.
//
// The Orchestrator runs a single event loop: location updates go through the
// ResultCache, which decides whether a radius search is due; completed
// searches and viewport changes re-run the ClusterEngine and hand the
// clusters to the renderer. Only the search itself runs off the loop.
package client

import (
	"context"
	"log"
	"time"

	"loo-finder/models"
	"loo-finder/services"
)

// RenderFunc receives every recomputed cluster set with the viewport it was
// computed for.
type RenderFunc func(clusters []models.Cluster, viewport models.Viewport)

type Options struct {
	// SearchRadius is the radius in meters of each nearby search.
	SearchRadius float64
	// DefaultSpan is the viewport span in degrees used around the user until
	// the map reports a viewport of its own.
	DefaultSpan float64
	// OnError is told about failed searches; the map keeps its last results.
	OnError func(err error)
	Now     func() time.Time
}

type fetchResult struct {
	toilets []models.Toilet
	at      models.Coordinate
	err     error
}

type Orchestrator struct {
	cache  *services.ResultCache
	engine *services.ClusterEngine
	finder services.ToiletFinder
	render RenderFunc
	opts   Options

	locations chan models.Coordinate
	viewports chan models.Viewport
	refreshes chan struct{}
	results   chan fetchResult

	// owned by the loop
	location     models.Coordinate
	hasLocation  bool
	viewport     models.Viewport
	userViewport bool
}

func NewOrchestrator(cache *services.ResultCache, engine *services.ClusterEngine, finder services.ToiletFinder, render RenderFunc, opts Options) *Orchestrator {
	if opts.SearchRadius <= 0 {
		opts.SearchRadius = 1500
	}
	if opts.DefaultSpan <= 0 {
		opts.DefaultSpan = 0.02
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OnError == nil {
		opts.OnError = func(err error) {
			log.Printf("Couldn't refresh toilets, showing last known results: %v", err)
		}
	}
	return &Orchestrator{
		cache:     cache,
		engine:    engine,
		finder:    finder,
		render:    render,
		opts:      opts,
		locations: make(chan models.Coordinate),
		viewports: make(chan models.Viewport),
		refreshes: make(chan struct{}),
		// at most one search is ever in flight
		results: make(chan fetchResult, 1),
	}
}

// Run processes events until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-o.locations:
			o.handleLocation(ctx, c)
		case v := <-o.viewports:
			o.viewport = v
			o.userViewport = true
			o.recluster()
		case <-o.refreshes:
			o.cache.ForceStale()
			if o.hasLocation {
				o.maybeFetch(ctx, o.location)
			}
		case r := <-o.results:
			o.handleResult(ctx, r)
		}
	}
}

// UpdateLocation delivers a location fix to the loop.
func (o *Orchestrator) UpdateLocation(ctx context.Context, c models.Coordinate) error {
	select {
	case o.locations <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateViewport delivers a pan or zoom to the loop. It never triggers a search.
func (o *Orchestrator) UpdateViewport(ctx context.Context, v models.Viewport) error {
	select {
	case o.viewports <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh asks for a new search at the last known location, ignoring the
// freshness thresholds.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	select {
	case o.refreshes <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) handleLocation(ctx context.Context, c models.Coordinate) {
	if !c.Valid() {
		log.Printf("Ignoring invalid location fix %+v", c)
		return
	}
	o.location = c
	o.hasLocation = true
	o.maybeFetch(ctx, c)

	if !o.userViewport {
		o.viewport = models.Viewport{Center: c, LatitudeSpan: o.opts.DefaultSpan, LongitudeSpan: o.opts.DefaultSpan}
		o.recluster()
	}
}

func (o *Orchestrator) maybeFetch(ctx context.Context, at models.Coordinate) {
	if !o.cache.ShouldFetch(at, o.opts.Now()) || !o.cache.BeginFetch() {
		return
	}
	go func() {
		toilets, err := o.finder.FindNearby(ctx, at, o.opts.SearchRadius)
		o.results <- fetchResult{toilets: toilets, at: at, err: err}
	}()
}

func (o *Orchestrator) handleResult(ctx context.Context, r fetchResult) {
	if r.err != nil {
		o.cache.FailFetch()
		o.opts.OnError(r.err)
		return
	}
	if err := o.cache.CompleteFetch(r.toilets, r.at, o.opts.Now()); err != nil {
		o.opts.OnError(err)
		return
	}
	o.recluster()

	// the user may have moved while the search was in flight
	if o.hasLocation {
		o.maybeFetch(ctx, o.location)
	}
}

func (o *Orchestrator) recluster() {
	if !o.hasLocation && !o.userViewport {
		return
	}
	clusters := o.engine.Cluster(o.cache.Points(), o.viewport)
	o.render(clusters, o.viewport)
}
