// Package heatmap aggregates weighted screen-space points into a density
// surface, mirroring the radius/blur/gradient model of heatmap.js so the
// headless client and the browser page agree on what a hotspot is.
package heatmap

import (
	"math"
	"sort"
	"sync"
)

// DefaultMax is the value that saturates the gradient; magnitudes rarely exceed it.
const DefaultMax = 10.0

// Point is one weighted sample in viewport pixels.
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Value float64 `json:"value"`
}

// Stop is one gradient color stop.
type Stop struct {
	At    float64
	Color string
}

// Config controls how samples spread and are colored.
type Config struct {
	Radius     float64
	MaxOpacity float64
	MinOpacity float64
	Blur       float64
	Gradient   []Stop // ascending by At
}

// DefaultConfig matches the page's heatmap.js setup.
func DefaultConfig() Config {
	return Config{
		Radius:     15,
		MaxOpacity: 0.6,
		MinOpacity: 0,
		Blur:       0.85,
		Gradient: []Stop{
			{At: 0.0, Color: "blue"},
			{At: 0.5, Color: "yellow"},
			{At: 1.0, Color: "red"},
		},
	}
}

// Hotspot is a grid cell with aggregated weight.
type Hotspot struct {
	X, Y   float64 // cell center in pixels
	Weight float64
	Count  int
}

// Layer is a density overlay.
type Layer struct {
	mu      sync.Mutex
	cfg     Config
	max     float64
	points  []Point
	visible bool
}

// New creates a hidden, empty layer.
func New(cfg Config) *Layer {
	return &Layer{cfg: cfg, max: DefaultMax}
}

// SetData replaces all samples. A non-positive max falls back to DefaultMax.
func (l *Layer) SetData(max float64, points []Point) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if max <= 0 {
		max = DefaultMax
	}
	l.max = max
	l.points = append([]Point(nil), points...)
}

// Clear drops all samples.
func (l *Layer) Clear() {
	l.SetData(DefaultMax, nil)
}

// SetVisible shows or hides the layer.
func (l *Layer) SetVisible(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.visible = v
}

// Visible reports whether the layer is shown.
func (l *Layer) Visible() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.visible
}

// Points returns a copy of the current samples.
func (l *Layer) Points() []Point {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Point(nil), l.points...)
}

// Intensity returns the normalized density at (x, y) in [0, 1]. Each sample
// contributes value * falloff(distance) where falloff is 1 inside the blur
// core and fades linearly to 0 at the radius.
func (l *Layer) Intensity(x, y float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var sum float64
	for _, p := range l.points {
		sum += p.Value * l.falloff(math.Hypot(p.X-x, p.Y-y))
	}
	return math.Min(1, math.Max(0, sum/l.max))
}

// Opacity maps an intensity to the layer's opacity range.
func (l *Layer) Opacity(intensity float64) float64 {
	return l.cfg.MinOpacity + (l.cfg.MaxOpacity-l.cfg.MinOpacity)*intensity
}

// Color returns the gradient stop color for an intensity: the highest stop
// at or below it.
func (l *Layer) Color(intensity float64) string {
	if len(l.cfg.Gradient) == 0 {
		return ""
	}
	color := l.cfg.Gradient[0].Color
	for _, s := range l.cfg.Gradient {
		if intensity >= s.At {
			color = s.Color
		}
	}
	return color
}

// Hotspots buckets samples into square cells one radius wide and returns up
// to n cells ordered by total weight.
func (l *Layer) Hotspots(n int) []Hotspot {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := l.cfg.Radius
	if size <= 0 {
		size = 1
	}
	type key struct{ cx, cy int }
	cells := make(map[key]*Hotspot)
	for _, p := range l.points {
		k := key{int(math.Floor(p.X / size)), int(math.Floor(p.Y / size))}
		h, ok := cells[k]
		if !ok {
			h = &Hotspot{X: (float64(k.cx) + 0.5) * size, Y: (float64(k.cy) + 0.5) * size}
			cells[k] = h
		}
		h.Weight += p.Value
		h.Count++
	}

	out := make([]Hotspot, 0, len(cells))
	for _, h := range cells {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (l *Layer) falloff(d float64) float64 {
	r := l.cfg.Radius
	if d >= r {
		return 0
	}
	core := r * (1 - l.cfg.Blur)
	if d <= core {
		return 1
	}
	return (r - d) / (r - core)
}
