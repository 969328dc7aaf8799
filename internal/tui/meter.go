// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"audiovis/internal/analysis"
	"audiovis/internal/vis"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// Meter levels are shown on a -60..0 dBFS scale.
const meterFloorDB = -60

type tickMsg time.Time

// MeterConfig sizes the meter.
type MeterConfig struct {
	FPS     int
	FFTSize int
}

// MeterModel is a Bubble Tea model that steps the driver on every tick and
// renders the current source, its level and band energies. While it runs
// it is the render loop.
type MeterModel struct {
	driver   *vis.Driver
	interval time.Duration
	cfg      MeterConfig
	bands    []analysis.FrequencyBand
	bandRate float64 // sample rate bands were laid out for

	frame    uint64
	source   string
	channels int
	silent   bool
	level    float64
	peak     float32
	width    int
}

// NewMeterModel creates a meter driving d.
func NewMeterModel(d *vis.Driver, cfg MeterConfig) MeterModel {
	cfg.FPS = max(cfg.FPS, 1)
	return MeterModel{
		driver:   d,
		interval: time.Second / time.Duration(cfg.FPS),
		cfg:      cfg,
		width:    80,
	}
}

func (m MeterModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m MeterModel) Init() tea.Cmd {
	return m.tick()
}

func (m MeterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		if key.Matches(msg, key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"))) {
			return m, tea.Quit
		}

	case tickMsg:
		m.step()
		return m, m.tick()
	}
	return m, nil
}

// step renders one frame and captures what View shows. The engine's
// buffers are only valid on this goroutine, so nothing is kept by reference.
func (m *MeterModel) step() {
	m.frame = m.driver.Step()
	e := m.driver.Engine()
	src := e.Current()

	m.source = src.Source().String()
	m.channels = src.ChannelCount()
	m.silent = src.IsSilent()

	wave := e.GetWaveform(vis.Center)
	m.level = analysis.RMS(wave)
	m.peak = analysis.Peak(wave)

	// Sources may run at different rates, so band edges follow the current one.
	if rate := src.SampleRate(); rate != m.bandRate {
		m.bands = analysis.DefaultBands(rate)
		m.bandRate = rate
	}
	analysis.Bands(m.bands, e.GetSpectrum(vis.Center), m.bandRate, m.cfg.FFTSize)
}

func (m MeterModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("audiovis"))
	sb.WriteString("\n\n")

	state := highlightStyle.Render("● active")
	if m.silent {
		state = dimStyle.Render("○ silent")
	}
	source := m.source
	if source == "" {
		source = "waiting"
	}
	fmt.Fprintf(&sb, "Source: %s (%d ch) %s\n", infoStyle.Render(source), m.channels, state)
	fmt.Fprintf(&sb, "Frame:  %d\n\n", m.frame)

	width := max(m.width-20, 10)
	fmt.Fprintf(&sb, "%-8s %s %6.1f dB\n", "level", bar(dbFraction(m.level), width), toDB(m.level))
	fmt.Fprintf(&sb, "%-8s %s %6.1f dB\n\n", "peak", bar(dbFraction(float64(m.peak)), width), toDB(float64(m.peak)))

	for _, b := range m.bands {
		fmt.Fprintf(&sb, "%-8s %s %6.1f dB\n", b.Name, bar(dbFraction(b.Energy), width), toDB(b.Energy))
	}

	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render("q: Quit"))
	return sb.String()
}

// toDB converts a linear amplitude to dBFS, floored at meterFloorDB.
func toDB(v float64) float64 {
	if v <= 0 {
		return meterFloorDB
	}
	return max(20*math.Log10(v), meterFloorDB)
}

// dbFraction maps an amplitude onto the meter scale.
func dbFraction(v float64) float64 {
	return (toDB(v) - meterFloorDB) / -meterFloorDB
}

// RunMeter runs the meter full screen until the user quits or ctx is
// cancelled.
func RunMeter(ctx context.Context, d *vis.Driver, cfg MeterConfig) error {
	p := tea.NewProgram(
		NewMeterModel(d, cfg),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
