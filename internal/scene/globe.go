// Package scene is a headless stand-in for the 3D globe: an entity collection,
// a camera, orthographic screen projection, hit-testing and framing. The web
// client does the same work with CesiumJS; this package lets the controller
// run and be tested without a browser.
package scene

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/couchcryptid/quake-globe/internal/domain"
)

const (
	// pickTolerance widens the hit area around a marker, in pixels.
	pickTolerance = 2.0

	minAltitude = 50_000.0
	// maxAltitude shows a full hemisphere.
	maxAltitude = orb.EarthRadius * math.Pi / 2

	framePadding = 1.1
)

// Marker is a drawn point entity.
type Marker struct {
	ID          string
	Position    orb.Point
	PixelSize   float64
	Color       string
	Alpha       float64
	Description string
	Index       int // position in the EventSet snapshot it was drawn from
}

// Camera is the current view.
type Camera struct {
	Center   orb.Point
	Altitude float64 // meters above the surface
	PitchDeg float64
}

// Flight is an animated camera transition request.
type Flight struct {
	Destination orb.Point
	Altitude    float64
	PitchDeg    float64
	Duration    time.Duration
}

// Globe holds the entity collection and camera for one view.
type Globe struct {
	mu         sync.Mutex
	width      float64
	height     float64
	camera     Camera
	markers    []Marker
	lastFlight *Flight
	listeners  []func()
}

// NewGlobe creates a globe rendered into a width x height pixel viewport,
// looking straight down at (0, 0) from far enough to see a hemisphere.
func NewGlobe(width, height float64) *Globe {
	return &Globe{
		width:  width,
		height: height,
		camera: Camera{Altitude: maxAltitude, PitchDeg: -90},
	}
}

// OnCameraMove registers fn to run after every camera change. Listeners run
// without the globe lock held.
func (g *Globe) OnCameraMove(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

// RemoveAll clears every drawn entity.
func (g *Globe) RemoveAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.markers = nil
}

// Add draws a marker.
func (g *Globe) Add(m Marker) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.markers = append(g.markers, m)
}

// Markers returns the drawn markers in draw order.
func (g *Globe) Markers() []Marker {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Marker, len(g.markers))
	copy(out, g.markers)
	return out
}

// Camera returns the current camera.
func (g *Globe) Camera() Camera {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.camera
}

// LastFlight returns the most recent fly-to request.
func (g *Globe) LastFlight() (Flight, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastFlight == nil {
		return Flight{}, false
	}
	return *g.lastFlight, true
}

// FlyTo moves the camera to the flight destination. The headless globe
// completes the transition immediately.
func (g *Globe) FlyTo(f Flight) {
	g.mu.Lock()
	g.lastFlight = &f
	g.camera = Camera{Center: f.Destination, Altitude: clampAltitude(f.Altitude), PitchDeg: f.PitchDeg}
	listeners := g.listeners
	g.mu.Unlock()

	notify(listeners)
}

// LookAt moves the camera without recording a flight, as user drag or zoom would.
func (g *Globe) LookAt(c Camera) {
	g.mu.Lock()
	c.Altitude = clampAltitude(c.Altitude)
	g.camera = c
	listeners := g.listeners
	g.mu.Unlock()

	notify(listeners)
}

// Frame points the camera so every drawn marker is in view. It returns
// domain.ErrRenderTargetMissing when nothing is drawn.
func (g *Globe) Frame() error {
	g.mu.Lock()
	if len(g.markers) == 0 {
		g.mu.Unlock()
		return domain.ErrRenderTargetMissing
	}

	center := frameCenter(g.markers)

	var maxAngle float64
	for _, m := range g.markers {
		maxAngle = math.Max(maxAngle, geo.Distance(center, m.Position)/orb.EarthRadius)
	}

	g.camera = Camera{
		Center:   center,
		Altitude: clampAltitude(maxAngle * framePadding * orb.EarthRadius),
		PitchDeg: -90,
	}
	listeners := g.listeners
	g.mu.Unlock()

	notify(listeners)
	return nil
}

// frameCenter is the center of the smallest lon/lat box holding every marker.
// The box may cross the antimeridian.
func frameCenter(markers []Marker) orb.Point {
	lons := make([]float64, len(markers))
	minLat, maxLat := 90.0, -90.0
	for i, m := range markers {
		lons[i] = m.Position.Lon()
		minLat = math.Min(minLat, m.Position.Lat())
		maxLat = math.Max(maxLat, m.Position.Lat())
	}
	slices.Sort(lons)

	// The box covers everything except the widest empty gap between neighbours.
	west, gap := lons[0], lons[0]+360-lons[len(lons)-1]
	for i := 1; i < len(lons); i++ {
		if d := lons[i] - lons[i-1]; d > gap {
			west, gap = lons[i], d
		}
	}
	lon := west + (360-gap)/2
	if lon > 180 {
		lon -= 360
	}
	return orb.Point{lon, (minLat + maxLat) / 2}
}

// Project maps a geographic point to viewport pixels using an orthographic
// projection centered on the camera. ok is false when the point is on the far
// side of the globe or outside the viewport. Camera pitch is not modeled.
func (g *Globe) Project(p orb.Point) (x, y float64, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.project(p)
}

func (g *Globe) project(p orb.Point) (float64, float64, bool) {
	lon0, lat0 := deg2rad(g.camera.Center.Lon()), deg2rad(g.camera.Center.Lat())
	lon, lat := deg2rad(p.Lon()), deg2rad(p.Lat())

	cosc := math.Sin(lat0)*math.Sin(lat) + math.Cos(lat0)*math.Cos(lat)*math.Cos(lon-lon0)
	if cosc < 0 {
		return 0, 0, false
	}

	px := math.Cos(lat) * math.Sin(lon-lon0)
	py := math.Cos(lat0)*math.Sin(lat) - math.Sin(lat0)*math.Cos(lat)*math.Cos(lon-lon0)

	halfSpan := math.Min(math.Pi/2, g.camera.Altitude/orb.EarthRadius)
	scale := (math.Min(g.width, g.height) / 2) / math.Sin(halfSpan)

	x := g.width/2 + scale*px
	y := g.height/2 - scale*py
	if x < 0 || y < 0 || x > g.width || y > g.height {
		return 0, 0, false
	}
	return x, y, true
}

// Pick returns the top-most marker under the pixel (x, y).
func (g *Globe) Pick(x, y float64) (Marker, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := len(g.markers) - 1; i >= 0; i-- {
		m := g.markers[i]
		mx, my, ok := g.project(m.Position)
		if !ok {
			continue
		}
		if math.Hypot(mx-x, my-y) <= m.PixelSize/2+pickTolerance {
			return m, true
		}
	}
	return Marker{}, false
}

func notify(listeners []func()) {
	for _, fn := range listeners {
		fn()
	}
}

func clampAltitude(a float64) float64 {
	return math.Max(minAltitude, math.Min(maxAltitude, a))
}

func deg2rad(d float64) float64 {
	return d * math.Pi / 180
}
