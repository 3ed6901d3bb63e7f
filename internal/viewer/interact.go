package viewer

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/paulmach/orb/geo"

	"github.com/couchcryptid/quake-globe/internal/domain"
	"github.com/couchcryptid/quake-globe/internal/scene"
)

// Search fly-to parameters.
const (
	SearchAltitude    = 80_000.0
	minSearchAltitude = 20_000.0
	maxSearchAltitude = 10_000_000.0
	// searchBoundPadding scales the match's bounding-box diagonal into an altitude.
	searchBoundPadding = 1.5
)

// TooltipOffset is added to the pointer position in both axes.
const TooltipOffset = 15.0

// HoverState tracks whether the tooltip is showing.
type HoverState int

const (
	Idle HoverState = iota
	Hovering
)

func (s HoverState) String() string {
	if s == Hovering {
		return "hovering"
	}
	return "idle"
}

// Search geocodes query and flies to the best match. An empty query does
// nothing. Failures show a notice and leave the camera where it is.
func (c *Controller) Search(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if c.geocoder == nil {
		c.notifier.Notify(NoticeSearchFailed)
		return domain.ErrGeocodeUnavailable
	}

	res, err := c.geocoder.Search(ctx, query)
	if err != nil {
		if errors.Is(err, domain.ErrGeocodeNotFound) {
			c.logger.Info("location not found", "query", query)
			c.notifier.Notify(NoticeLocationNotFound)
			return err
		}
		c.logger.Warn("location search failed", "query", query, "error", err)
		c.notifier.Notify(NoticeSearchFailed)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.scene.FlyTo(scene.Flight{
		Destination: res.Point,
		Altitude:    SearchFlightAltitude(res),
		PitchDeg:    EventFlightPitch,
		Duration:    EventFlightDuration,
	})
	c.logger.Debug("flying to location", "query", query, "match", res.DisplayName)
	return nil
}

// SearchFlightAltitude is SearchAltitude unless the match has a bounding
// box, in which case the altitude grows with the box diagonal.
func SearchFlightAltitude(res domain.GeocodingResult) float64 {
	if res.Bound == nil {
		return SearchAltitude
	}
	diag := geo.Distance(res.Bound.Min, res.Bound.Max) * searchBoundPadding
	return math.Min(maxSearchAltitude, math.Max(minSearchAltitude, diag))
}

// PointerMove hit-tests at (x, y) and shows the picked marker's description
// next to the pointer, or hides the tooltip on a miss.
func (c *Controller) PointerMove(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.scene.Pick(x, y)
	if ok && m.Description != "" {
		c.tooltip.Show(m.Description, x+TooltipOffset, y+TooltipOffset)
		c.hover = Hovering
		return
	}
	c.hideTooltip()
}

// PointerDown hides the tooltip.
func (c *Controller) PointerDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hideTooltip()
}

// Hover returns the hover state.
func (c *Controller) Hover() HoverState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hover
}

func (c *Controller) hideTooltip() {
	c.tooltip.Hide()
	c.hover = Idle
}
