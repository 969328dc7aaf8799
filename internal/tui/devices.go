// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"audiovis/internal/audio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	DetailScreen
)

var (
	upKey    = key.NewBinding(key.WithKeys("up", "k"))
	downKey  = key.NewBinding(key.WithKeys("down", "j"))
	enterKey = key.NewBinding(key.WithKeys("enter"))
	backKey  = key.NewBinding(key.WithKeys("esc"))
	quitKey  = key.NewBinding(key.WithKeys("q", "ctrl+c"))
)

// DeviceListModel browses audio devices and shows which source role each
// one can fill.
type DeviceListModel struct {
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType
	fetch         func() ([]audio.Device, error)
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// NewDeviceListModel creates a model listing PortAudio devices. PortAudio
// must be initialized.
func NewDeviceListModel() DeviceListModel {
	return DeviceListModel{
		activeScreen: ListScreen,
		fetch:        audio.HostDevices,
	}
}

func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case devicesMsg:
		m.devices = msg.devices
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, quitKey) {
			return m, tea.Quit
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, upKey):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, downKey):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, enterKey):
				if len(m.devices) > 0 {
					m.activeScreen = DetailScreen
				}
			}
		case DetailScreen:
			if key.Matches(msg, backKey) {
				m.activeScreen = ListScreen
			}
		}
		m.refresh()
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// refresh re-renders the active screen into the viewport.
func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == DetailScreen && len(m.devices) > 0 {
		m.viewport.SetContent(m.renderDetail())
		return
	}
	m.viewport.SetContent(m.renderDevices())
}

func (m DeviceListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Audio Device List")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Details • q: Quit")
	} else {
		title = titleStyle.Render("Device Details")
		help = infoStyle.Render("Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func deviceType(d audio.Device) string {
	switch {
	case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
		return "Input/Output"
	case d.MaxInputChannels > 0:
		return "Input"
	case d.MaxOutputChannels > 0:
		return "Output"
	}
	return "Unknown"
}

// renderDevices formats the device list
func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No audio devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		line := fmt.Sprintf("[%d] %s (%s)", device.ID, device.Name, deviceType(device))
		if device.Loopback {
			line += " [loopback]"
		}
		line += "\n"

		if i == m.selectedIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// renderDetail formats the selected device and the roles it can fill.
func (m DeviceListModel) renderDetail() string {
	device := m.devices[m.selectedIndex]

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n", highlightStyle.Render(device.Name))
	fmt.Fprintf(&sb, "Type:                %s\n", deviceType(device))
	fmt.Fprintf(&sb, "Input channels:      %d\n", device.MaxInputChannels)
	fmt.Fprintf(&sb, "Output channels:     %d\n", device.MaxOutputChannels)
	fmt.Fprintf(&sb, "Default sample rate: %.0f Hz\n\n", device.DefaultSampleRate)

	sb.WriteString("Usable as:\n")
	switch {
	case device.Loopback:
		fmt.Fprintf(&sb, "  %s source (auto-detected)\n", audio.SystemLoopback)
		fmt.Fprintf(&sb, "  %s source\n", audio.Microphone)
	case device.MaxInputChannels > 0:
		fmt.Fprintf(&sb, "  %s source\n", audio.Microphone)
		fmt.Fprintf(&sb, "  %s source (set sources.loopback_device)\n", audio.SystemLoopback)
	default:
		sb.WriteString(dimStyle.Render("  output only, not a capture source") + "\n")
	}
	return sb.String()
}

// RunDeviceList launches the device browser.
func RunDeviceList() error {
	p := tea.NewProgram(
		NewDeviceListModel(),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
