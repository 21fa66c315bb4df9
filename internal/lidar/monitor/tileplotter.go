// Package monitor renders diagnostic output for a generation run: one PNG
// per processed tile and an HTML report of the survey statistics.
package monitor

import (
	"fmt"
	"image/color"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/lidar2map/internal/fsutil"
	"github.com/banshee-data/lidar2map/internal/lidar/l2tiles"
	"github.com/banshee-data/lidar2map/internal/lidar/l6objects"
	"github.com/paulmach/orb"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// TilePlotter writes a PNG of each tile's objects into a directory. It is
// safe for concurrent use by the tile workers.
type TilePlotter struct {
	fs     fsutil.FileSystem
	dir    string
	width  vg.Length
	height vg.Length

	mu      sync.Mutex
	written []string
}

// NewTilePlotter creates dir on fsys and returns a plotter writing into it.
func NewTilePlotter(fsys fsutil.FileSystem, dir string) (*TilePlotter, error) {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &TilePlotter{fs: fsys, dir: dir, width: 8 * vg.Inch, height: 8 * vg.Inch}, nil
}

// PlotTile renders the objects of one tile together with its cut rectangle
// and writes <dir>/<tile id>.png.
func (tp *TilePlotter) PlotTile(tile l2tiles.Tile, objects []l6objects.Object) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Tile %s - %d objects", tile.ID(), len(objects))
	p.X.Label.Text = "Easting (m)"
	p.Y.Label.Text = "Northing (m)"

	// Areas first so lines and points stay visible on top.
	sorted := make([]l6objects.Object, len(objects))
	copy(sorted, objects)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Kind() > sorted[b].Kind()
	})

	legend := map[l6objects.Symbol]bool{}
	for _, obj := range sorted {
		sym := l6objects.MetaOf(obj).Symbol
		thumb, err := addObject(p, obj, symbolColour(sym))
		if err != nil {
			return fmt.Errorf("tile %s: %s: %w", tile.ID(), sym, err)
		}
		if thumb != nil && !legend[sym] {
			legend[sym] = true
			p.Legend.Add(sym.String(), thumb)
		}
	}

	cut, err := plotter.NewLine(ringXYs(tile.Cut.ToRing()))
	if err != nil {
		return err
	}
	cut.Color = color.Gray{Y: 128}
	cut.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(cut)

	p.X.Min, p.X.Max = tile.Bounds.Min[0], tile.Bounds.Max[0]
	p.Y.Min, p.Y.Max = tile.Bounds.Min[1], tile.Bounds.Max[1]
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(tp.width, tp.height, "png")
	if err != nil {
		return fmt.Errorf("render tile %s: %w", tile.ID(), err)
	}
	name := filepath.Join(tp.dir, tile.ID()+".png")
	f, err := tp.fs.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("save tile plot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("save tile plot: %w", err)
	}

	tp.mu.Lock()
	tp.written = append(tp.written, name)
	tp.mu.Unlock()
	return nil
}

// Written returns the files written so far in name order.
func (tp *TilePlotter) Written() []string {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	out := append([]string(nil), tp.written...)
	sort.Strings(out)
	return out
}

func addObject(p *plot.Plot, obj l6objects.Object, c color.Color) (plot.Thumbnailer, error) {
	switch o := obj.(type) {
	case *l6objects.LineObject:
		if len(o.Line) < 2 {
			return nil, nil
		}
		l, err := plotter.NewLine(ringXYs(o.Line))
		if err != nil {
			return nil, err
		}
		l.Color = c
		l.Width = vg.Points(1)
		if o.Symbol == l6objects.SymbolIndexContour {
			l.Width = vg.Points(2)
		}
		p.Add(l)
		return l, nil
	case *l6objects.AreaObject:
		if len(o.Polygon) == 0 || len(o.Polygon[0]) < 3 {
			return nil, nil
		}
		rings := make([]plotter.XYer, len(o.Polygon))
		for i, r := range o.Polygon {
			rings[i] = ringXYs(r)
		}
		poly, err := plotter.NewPolygon(rings...)
		if err != nil {
			return nil, err
		}
		poly.Color = withAlpha(c, 160)
		poly.LineStyle.Color = c
		poly.LineStyle.Width = vg.Points(0.5)
		p.Add(poly)
		return poly, nil
	case *l6objects.PointObject:
		s, err := plotter.NewScatter(plotter.XYs{{X: o.Point[0], Y: o.Point[1]}})
		if err != nil {
			return nil, err
		}
		s.GlyphStyle.Color = c
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Radius = vg.Points(3)
		p.Add(s)
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported object %T", obj)
	}
}

func ringXYs[T ~[]orb.Point](pts T) plotter.XYs {
	xys := make(plotter.XYs, len(pts))
	for i, pt := range pts {
		xys[i].X, xys[i].Y = pt[0], pt[1]
	}
	return xys
}

var symbolColours = map[l6objects.Symbol]color.RGBA{
	l6objects.SymbolContour:        {R: 209, G: 92, B: 0, A: 255},
	l6objects.SymbolIndexContour:   {R: 209, G: 92, B: 0, A: 255},
	l6objects.SymbolFormLine:       {R: 209, G: 92, B: 0, A: 255},
	l6objects.SymbolBasemapContour: {R: 150, G: 150, B: 150, A: 255},
	l6objects.SymbolCliff:          {R: 0, G: 0, B: 0, A: 255},
	l6objects.SymbolBoulder:        {R: 0, G: 0, B: 0, A: 255},
	l6objects.SymbolBareRock:       {R: 178, G: 178, B: 178, A: 255},
	l6objects.SymbolMarsh:          {R: 0, G: 160, B: 230, A: 255},
	l6objects.SymbolOpenLand:       {R: 255, G: 186, B: 54, A: 255},
	l6objects.SymbolGreen1:         {R: 197, G: 255, B: 185, A: 255},
	l6objects.SymbolGreen2:         {R: 139, G: 255, B: 116, A: 255},
	l6objects.SymbolGreen3:         {R: 61, G: 255, B: 23, A: 255},
	l6objects.SymbolPaved:          {R: 220, G: 180, B: 120, A: 255},
}

// symbolColour returns the print colour of sym, or a hue derived from the
// code for symbols without one.
func symbolColour(sym l6objects.Symbol) color.Color {
	if c, ok := symbolColours[sym]; ok {
		return c
	}
	r, g, b := hslToRGB(float64(int(sym)%360)/360, 0.7, 0.5)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func withAlpha(c color.Color, a uint8) color.Color {
	r, g, b, _ := c.RGBA()
	return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: a}
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir returns <baseDir>/<name>/<timestamp>, or
// <baseDir>/run_<timestamp> when name is empty.
func MakePlotOutputDir(baseDir, name string, t time.Time) string {
	ts := FormatTimestamp(t)
	if name != "" {
		ext := filepath.Ext(name)
		return filepath.Join(baseDir, filepath.Base(name[:len(name)-len(ext)]), ts)
	}
	return filepath.Join(baseDir, "run_"+ts)
}
