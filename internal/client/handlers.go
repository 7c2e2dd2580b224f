package client

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fenggwsx/roomcast/internal/protocol"
)

func (a *App) handleConnectResult(msg connectResultMsg) tea.Cmd {
	if msg.session != a.session {
		_ = msg.session.Close()
		return nil
	}
	if msg.err != nil {
		a.session = nil
		a.statusOnline = false
		a.logErrorf("Connection to %s failed: %v", msg.address, msg.err)
		return nil
	}
	a.statusOnline = true
	a.logf("Connected to %s", msg.address)
	return a.listenForSession()
}

func (a *App) handleSessionClosed(msg sessionClosedMsg) {
	if msg.session != a.session {
		return
	}
	a.session = nil
	a.statusOnline = false
	a.resetRoom()
	a.updateViewportContent()
	if err := msg.session.Err(); err != nil {
		a.logErrorf("Connection closed: %v", err)
		return
	}
	a.logf("Connection closed")
}

func (a *App) handleSessionEvent(msg sessionEventMsg) tea.Cmd {
	if msg.session != a.session {
		return nil
	}
	switch e := msg.event.(type) {
	case protocol.NewMessage:
		if e.RoomID == a.room {
			a.appendChatLine(a.formatChatMessage(e.Sender, e.Text, e.Timestamp))
		}
	case protocol.SystemNotice:
		a.appendChatLine(a.formatNotice(e))
	case protocol.ErrorEvent:
		a.logErrorf("Server: %s", e.Message)
	}
	return a.listenForSession()
}

func (a *App) handleAuthResult(msg authResultMsg) {
	if msg.err != nil {
		a.logErrorf("%s failed: %v", authLabel(msg.action), msg.err)
		return
	}
	a.api.SetToken(msg.token.Token)
	a.username = msg.token.Username
	a.logf("Authenticated as %s (token expires %s)", a.username, msg.token.ExpiresAt.UTC().Format(time.RFC3339))
}

func (a *App) handleRoomCreated(msg roomCreatedMsg) {
	if msg.err != nil {
		a.logErrorf("Create room failed: %v", msg.err)
		return
	}
	a.logf("Created %s with id %s; share it and %sjoin %s <nickname>", msg.room.Name, msg.room.RoomID, string(a.cfg.Prefix()), msg.room.RoomID)
}

func (a *App) handleRoomsListed(msg roomsListedMsg) {
	if msg.err != nil {
		a.logErrorf("List rooms failed: %v", msg.err)
		return
	}
	a.ownedRooms = msg.rooms
	a.view = viewRooms
	a.updateViewportContent()
	a.logf("You own %d room(s)", len(msg.rooms))
}

func (a *App) handleJoinReady(msg joinReadyMsg) tea.Cmd {
	if msg.err != nil {
		a.logErrorf("Join failed: %v", msg.err)
		return nil
	}
	if !a.isConnected() {
		a.logErrorf("Not connected. Use /server first.")
		return nil
	}

	var cmds []tea.Cmd
	if a.hasActiveRoom() && a.room != msg.room.RoomID {
		cmds = append(cmds, a.leaveRoom())
	}

	a.room = msg.room.RoomID
	a.roomName = msg.room.Name
	a.nickname = msg.nickname
	a.chatHistory = make([]chatLine, 0, len(msg.history))
	for _, m := range msg.history {
		a.chatHistory = append(a.chatHistory, a.formatChatMessage(m.Sender, m.Text, m.Timestamp))
	}
	a.view = viewChat
	a.updateViewportContent()
	a.logf("Joined %s (%s) as %s, %d earlier message(s)", a.roomName, a.room, a.nickname, len(msg.history))

	cmds = append(cmds, a.send(protocol.JoinEvent{RoomID: a.room, Nickname: a.nickname}, "join"))
	return tea.Sequence(cmds...)
}

func (a *App) isConnected() bool {
	return a.session != nil && a.statusOnline
}

func (a *App) resetRoom() {
	a.room = "-"
	a.roomName = ""
	a.nickname = ""
	a.chatHistory = nil
}

func (a *App) appendChatLine(line chatLine) {
	if strings.TrimSpace(line.text) == "" {
		return
	}
	a.chatHistory = append(a.chatHistory, line)
	if a.view == viewChat {
		a.updateViewportContent()
	}
}

// formatChatMessage builds one history line; the viewer's own messages are
// told apart by nickname.
func (a *App) formatChatMessage(sender, text string, at time.Time) chatLine {
	kind := lineOther
	if sender == a.nickname {
		kind = lineOwn
	}
	stamp := at.Local().Format("15:04:05")
	return chatLine{kind: kind, text: fmt.Sprintf("[%s] %s: %s", stamp, sender, text)}
}

func (a *App) formatNotice(n protocol.SystemNotice) chatLine {
	stamp := n.Timestamp.Local().Format("15:04:05")
	return chatLine{kind: lineSystem, text: fmt.Sprintf("[%s] * %s", stamp, n.Text)}
}

func authLabel(action string) string {
	if action == "register" {
		return "Registration"
	}
	return "Login"
}
