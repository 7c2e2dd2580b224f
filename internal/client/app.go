package client

import (
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fenggwsx/roomcast/internal/config"
	"github.com/fenggwsx/roomcast/internal/httpapi"
	"github.com/fenggwsx/roomcast/internal/protocol"
)

// App implements the bubbletea tea.Model interface for the terminal client.
type App struct {
	cfg      config.ClientConfig
	api      *APIClient
	session  *Session
	commands []commandSpec

	viewport   viewport.Model
	input      textinput.Model
	helper     help.Model
	styles     styleSet
	view       viewMode
	width      int
	height     int
	showHelp   bool
	helpView   string
	helpHeight int

	statusOnline bool
	username     string
	room         string
	roomName     string
	nickname     string
	chatHistory  []chatLine
	ownedRooms   []httpapi.RoomResponse
	logLine      logEntry
}

type viewMode int

const (
	viewChat viewMode = iota
	viewRooms
	viewHelp
)

func (v viewMode) String() string {
	switch v {
	case viewRooms:
		return "rooms"
	case viewHelp:
		return "help"
	default:
		return "chat"
	}
}

type lineKind int

const (
	lineOther lineKind = iota
	lineOwn
	lineSystem
)

// chatLine is an unstyled history line; styling is applied after wrapping.
type chatLine struct {
	kind lineKind
	text string
}

type logLevel int

const (
	logLevelInfo logLevel = iota
	logLevelError
)

type logEntry struct {
	level logLevel
	label string
	body  string
}

type styleSet struct {
	title         lipgloss.Style
	view          lipgloss.Style
	statusOnline  lipgloss.Style
	statusOffline lipgloss.Style
	label         lipgloss.Style
	value         lipgloss.Style
	logLabel      lipgloss.Style
	logBody       lipgloss.Style
	logLabelError lipgloss.Style
	logBodyError  lipgloss.Style
	help          lipgloss.Style
	own           lipgloss.Style
	other         lipgloss.Style
	system        lipgloss.Style
}

type commandSpec struct {
	trigger     string
	usage       string
	description string
}

// NewApp returns a Bubble Tea model pre-populated with defaults.
func NewApp(cfg config.ClientConfig) *App {
	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "Type a message or " + string(cfg.Prefix()) + "help"
	input.CharLimit = 500
	input.Focus()

	a := &App{
		cfg:      cfg,
		api:      NewAPIClient(cfg.ServerURL),
		commands: defaultCommands(cfg.Prefix()),
		viewport: viewport.New(0, 0),
		input:    input,
		helper:   help.New(),
		styles:   buildStyles(),
		view:     viewChat,
		username: "-",
		room:     "-",
	}
	a.logf("Use %sjoin <roomId> <nickname> to enter a room", string(cfg.Prefix()))
	a.updateViewportContent()
	return a
}

// Init is part of the tea.Model interface.
func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles user input and internal events.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = m.Width, m.Height
		a.updateInputWidth()
		a.updateHelp()
		a.updateViewportSize()
		a.updateViewportContent()
		return a, nil
	case tea.KeyMsg:
		return a.handleKey(m)
	case connectResultMsg:
		return a, a.handleConnectResult(m)
	case sessionEventMsg:
		return a, a.handleSessionEvent(m)
	case sessionClosedMsg:
		a.handleSessionClosed(m)
		return a, nil
	case sendResultMsg:
		if m.err != nil {
			a.logErrorf("Failed to send %s: %v", m.description, m.err)
		}
		return a, nil
	case authResultMsg:
		a.handleAuthResult(m)
		return a, nil
	case roomCreatedMsg:
		a.handleRoomCreated(m)
		return a, nil
	case roomsListedMsg:
		a.handleRoomsListed(m)
		return a, nil
	case joinReadyMsg:
		return a, a.handleJoinReady(m)
	}

	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	return a, cmd
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return a, a.quit()
	case tea.KeyEnter:
		value := a.input.Value()
		a.input.Reset()
		a.updateHelp()
		a.updateViewportSize()
		if value == "" {
			return a, nil
		}
		return a, a.handleSubmit(value)
	case tea.KeyTab:
		a.handleTabCompletion()
		a.updateHelp()
		a.updateViewportSize()
		return a, nil
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	a.updateHelp()
	a.updateViewportSize()
	return a, cmd
}

func (a *App) logf(format string, args ...any) {
	a.logLine = logEntry{level: logLevelInfo, label: "INFO", body: fmt.Sprintf(format, args...)}
}

func (a *App) logErrorf(format string, args ...any) {
	a.logLine = logEntry{level: logLevelError, label: "ERROR", body: fmt.Sprintf(format, args...)}
}

type connectResultMsg struct {
	session *Session
	address string
	err     error
}

type sessionEventMsg struct {
	session *Session
	event   protocol.Outbound
}

type sessionClosedMsg struct {
	session *Session
}

type sendResultMsg struct {
	description string
	err         error
}

type authResultMsg struct {
	action string
	token  httpapi.TokenResponse
	err    error
}

type roomCreatedMsg struct {
	room httpapi.RoomResponse
	err  error
}

type roomsListedMsg struct {
	rooms []httpapi.RoomResponse
	err   error
}

type joinReadyMsg struct {
	room     httpapi.RoomResponse
	nickname string
	history  []httpapi.MessageResponse
	err      error
}
