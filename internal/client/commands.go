package client

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fenggwsx/roomcast/internal/protocol"
)

func (a *App) handleSubmit(value string) tea.Cmd {
	if strings.HasPrefix(value, string(a.cfg.Prefix())) {
		return a.executeCommand(value)
	}
	return a.sendChatMessage(value)
}

func (a *App) executeCommand(raw string) tea.Cmd {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}

	name := strings.ToLower(strings.TrimPrefix(fields[0], string(a.cfg.Prefix())))
	args := fields[1:]
	var cmds []tea.Cmd

	switch name {
	case "chat":
		a.view = viewChat
		a.logf("Switched to CHAT view")
	case "help":
		a.view = viewHelp
		a.logf("Switched to HELP view")
	case "server":
		target := a.api.BaseURL()
		if len(args) > 0 {
			target = args[0]
		}
		if target == "" {
			a.logErrorf("Provide a server URL")
			break
		}
		if cmd := a.connectToServer(target); cmd != nil {
			cmds = append(cmds, cmd)
		}
	case "register", "login":
		if len(args) < 2 {
			a.logErrorf("Usage: /%s <username> <password>", name)
			break
		}
		username := args[0]
		password := strings.Join(args[1:], " ")
		if name == "register" {
			a.logf("Registering %s ...", username)
		} else {
			a.logf("Logging in as %s ...", username)
		}
		cmds = append(cmds, a.authenticate(name, username, password))
	case "create":
		if len(args) == 0 {
			a.logErrorf("Usage: /create <name>")
			break
		}
		if a.username == "-" {
			a.logErrorf("Authenticate before creating rooms (use /login or /register)")
			break
		}
		roomName := strings.Join(args, " ")
		a.logf("Creating room %s ...", roomName)
		cmds = append(cmds, a.createRoom(roomName))
	case "rooms":
		if a.username == "-" {
			a.logErrorf("Authenticate before listing rooms (use /login or /register)")
			break
		}
		a.logf("Fetching your rooms ...")
		cmds = append(cmds, a.listRooms())
	case "join":
		if len(args) < 2 {
			a.logErrorf("Usage: /join <roomId> <nickname>")
			break
		}
		roomID := args[0]
		nickname := strings.Join(args[1:], " ")
		if roomID == a.room && nickname == a.nickname {
			a.logf("Already in room %s", roomID)
			break
		}
		a.logf("Joining room %s as %s ...", roomID, nickname)
		cmds = append(cmds, a.prepareJoin(roomID, nickname))
	case "leave":
		if !a.hasActiveRoom() {
			a.logErrorf("No active room to leave")
			break
		}
		a.logf("Leaving room %s", a.room)
		if cmd := a.leaveRoom(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	case "quit", "exit":
		cmds = append(cmds, a.quit())
	default:
		a.logErrorf("Command %s not implemented", fields[0])
	}

	a.updateViewportContent()

	switch len(cmds) {
	case 0:
		return nil
	case 1:
		return cmds[0]
	default:
		return tea.Batch(cmds...)
	}
}

func (a *App) connectToServer(target string) tea.Cmd {
	if a.session != nil {
		_ = a.session.Close()
		a.session = nil
	}
	a.statusOnline = false
	a.resetRoom()

	session, err := NewSession(target)
	if err != nil {
		a.logErrorf("Invalid server URL: %v", err)
		return nil
	}
	a.api = NewAPIClient(target)
	a.username = "-"
	a.session = session
	a.logf("Connecting to %s ...", target)

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		return connectResultMsg{session: session, address: target, err: session.Connect(ctx)}
	}
}

func (a *App) listenForSession() tea.Cmd {
	session := a.session
	if session == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-session.Events()
		if !ok {
			return sessionClosedMsg{session: session}
		}
		return sessionEventMsg{session: session, event: event}
	}
}

func (a *App) authenticate(action, username, password string) tea.Cmd {
	api := a.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		var msg authResultMsg
		msg.action = action
		if action == "register" {
			msg.token, msg.err = api.Register(ctx, username, password)
		} else {
			msg.token, msg.err = api.Login(ctx, username, password)
		}
		return msg
	}
}

func (a *App) createRoom(name string) tea.Cmd {
	api := a.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		room, err := api.CreateRoom(ctx, name)
		return roomCreatedMsg{room: room, err: err}
	}
}

func (a *App) listRooms() tea.Cmd {
	api := a.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		rooms, err := api.ListRooms(ctx)
		return roomsListedMsg{rooms: rooms, err: err}
	}
}

// prepareJoin checks the room exists and loads its history before the join
// is sent over the websocket.
func (a *App) prepareJoin(roomID, nickname string) tea.Cmd {
	api := a.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		room, err := api.Room(ctx, roomID)
		if err != nil {
			return joinReadyMsg{err: err}
		}
		history, err := api.History(ctx, roomID)
		return joinReadyMsg{room: room, nickname: nickname, history: history, err: err}
	}
}

func (a *App) leaveRoom() tea.Cmd {
	event := protocol.LeaveEvent{RoomID: a.room, Nickname: a.nickname}
	a.resetRoom()
	return a.send(event, "leave")
}

func (a *App) sendChatMessage(content string) tea.Cmd {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if !a.isConnected() {
		a.logErrorf("Not connected. Use /server first.")
		return nil
	}
	if !a.hasActiveRoom() {
		a.logErrorf("Join a room before chatting (use /join <roomId> <nickname>)")
		return nil
	}
	if a.view != viewChat {
		a.view = viewChat
		a.updateViewportContent()
	}
	return a.send(protocol.SendEvent{RoomID: a.room, Sender: a.nickname, Text: content}, "message")
}

func (a *App) send(event protocol.Inbound, description string) tea.Cmd {
	session := a.session
	if session == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		return sendResultMsg{description: description, err: session.Send(ctx, event)}
	}
}

func (a *App) quit() tea.Cmd {
	a.logf("Exiting client")
	if a.session != nil {
		_ = a.session.Close()
		a.session = nil
	}
	a.statusOnline = false
	return tea.Quit
}

func defaultCommands(prefix rune) []commandSpec {
	p := string(prefix)
	return []commandSpec{
		{trigger: p + "server", usage: p + "server [url]", description: "Connect to a server"},
		{trigger: p + "register", usage: p + "register <username> <password>", description: "Register a new account"},
		{trigger: p + "login", usage: p + "login <username> <password>", description: "Authenticate with existing credentials"},
		{trigger: p + "create", usage: p + "create <name>", description: "Create a room you own"},
		{trigger: p + "rooms", usage: p + "rooms", description: "List the rooms you created"},
		{trigger: p + "join", usage: p + "join <roomId> <nickname>", description: "Join a room under a nickname"},
		{trigger: p + "leave", usage: p + "leave", description: "Leave the current room"},
		{trigger: p + "chat", usage: p + "chat", description: "Switch to chat view"},
		{trigger: p + "help", usage: p + "help", description: "Show command help"},
		{trigger: p + "quit", usage: p + "quit", description: "Exit the client"},
	}
}
