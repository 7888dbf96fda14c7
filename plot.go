package amrsweep

import (
	"bufio"
	"errors"
	"fmt"
	"image/color"
	"os"
	"sync"

	"go.viam.com/rdk/logging"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	PlotFile     = "r_vs_angle.png"
	LivePlotFile = "r_vs_angle_live.png"
	plotDPI      = 144
)

var plotRed = color.RGBA{R: 255, A: 255}

// livePlot keeps the running scatter series. Update never waits on rendering: it
// only drops a redraw request into a one-slot channel served by the renderer.
type livePlot struct {
	logger   logging.Logger
	livePath string

	mu  sync.Mutex
	pts plotter.XYs

	redraw chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// newLivePlot starts a renderer for livePath. An empty livePath keeps points in
// memory only, for the final Save.
func newLivePlot(livePath string, logger logging.Logger) *livePlot {
	p := &livePlot{
		logger:   logger,
		livePath: livePath,
		redraw:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if livePath != "" {
		p.wg.Add(1)
		go p.renderLoop()
	}
	return p
}

func (p *livePlot) Update(x, y float64) {
	p.mu.Lock()
	p.pts = append(p.pts, plotter.XY{X: x, Y: y})
	p.mu.Unlock()

	select {
	case p.redraw <- struct{}{}:
	default:
	}
}

func (p *livePlot) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pts)
}

func (p *livePlot) snapshot() plotter.XYs {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(plotter.XYs, len(p.pts))
	copy(out, p.pts)
	return out
}

func (p *livePlot) renderLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case <-p.redraw:
			if err := renderPlot(p.snapshot(), p.livePath, false); err != nil {
				p.logger.Warnf("live plot redraw failed: %v", err)
			}
		}
	}
}

// Save writes the final plot: points joined by a dashed line.
func (p *livePlot) Save(path string) error {
	return renderPlot(p.snapshot(), path, true)
}

// Close stops the renderer. Safe to call more than once.
func (p *livePlot) Close() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	p.wg.Wait()
}

func renderPlot(pts plotter.XYs, path string, withLine bool) error {
	if len(pts) == 0 {
		return errors.New("no points to plot")
	}

	pl := plot.New()
	pl.X.Label.Text = "Angle (Degrees)"
	pl.Y.Label.Text = "Resistance (Ω)"

	s, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("building scatter: %w", err)
	}
	s.GlyphStyle.Color = plotRed
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	s.GlyphStyle.Radius = vg.Points(3)
	pl.Add(s)

	if withLine && len(pts) > 1 {
		l, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("building line: %w", err)
		}
		l.LineStyle.Color = plotRed
		l.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
		pl.Add(l)
		pl.Legend.Add("Up", l)
	}

	return savePNG(pl, path)
}

// savePNG renders through a temp file so a reader never sees a half-written image.
func savePNG(pl *plot.Plot, path string) error {
	c := vgimg.NewWith(
		vgimg.UseWH(8*vg.Inch, 6*vg.Inch),
		vgimg.UseDPI(plotDPI),
	)
	pl.Draw(draw.New(c))

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating plot: %w", err)
	}
	bw := bufio.NewWriter(f)
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(bw); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing plot: %w", err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing plot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
