package client

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/roomcast/internal/auth"
	"github.com/fenggwsx/roomcast/internal/chat"
	"github.com/fenggwsx/roomcast/internal/config"
	"github.com/fenggwsx/roomcast/internal/gateway"
	"github.com/fenggwsx/roomcast/internal/httpapi"
	"github.com/fenggwsx/roomcast/internal/protocol"
	"github.com/fenggwsx/roomcast/internal/storage"
	"github.com/fenggwsx/roomcast/internal/storage/sqlite"
)

var testCfg = config.ClientConfig{ServerURL: "http://localhost:8080", CommandPrefix: "/"}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.NewStore(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "client.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	jwtCfg := config.JWTConfig{Secret: "test", Issuer: "roomcast-test", Expiration: time.Hour}
	registry := chat.NewRegistry()
	engine := chat.NewEngine(registry, store, zerolog.Nop())
	gw := gateway.New(engine, zerolog.Nop(), gateway.Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, gw.Shutdown(ctx))
	})

	srv := httptest.NewServer(httpapi.NewRouter(httpapi.Deps{
		Logger:        zerolog.Nop(),
		Accounts:      auth.NewService(jwtCfg, store),
		Authenticator: auth.NewJWTAuthenticator(jwtCfg),
		Rooms:         store,
		Messages:      store,
		Registry:      registry,
		HistoryLimit:  storage.DefaultHistoryLimit,
		Gateway:       gw,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebsocketURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080":     "ws://localhost:8080/ws",
		"https://chat.example.com/": "wss://chat.example.com/ws",
		"http://host/prefix":        "ws://host/prefix/ws",
		"ws://already.example.com":  "ws://already.example.com/ws",
	}
	for in, want := range cases {
		got, err := websocketURL(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
	}

	_, err := websocketURL("ftp://host")
	require.Error(t, err)
	_, err = websocketURL("http://")
	require.Error(t, err)
}

func TestWrapLines(t *testing.T) {
	req := require.New(t)

	lines := wrapLines([]string{"the quick brown fox jumps over the lazy dog"}, 10)
	for _, line := range lines {
		req.LessOrEqual(runewidth.StringWidth(line), 10)
	}
	req.Equal("the quick brown fox jumps over the lazy dog", strings.Join(lines, " "))

	wide := wrapLines([]string{"你好世界你好世界"}, 10)
	req.Equal([]string{"你好世界你", "好世界"}, wide)
}

func TestLongestCommonPrefix(t *testing.T) {
	require.Equal(t, "/r", longestCommonPrefix([]string{"/register", "/rooms"}))
	require.Equal(t, "/join", longestCommonPrefix([]string{"/join"}))
	require.Empty(t, longestCommonPrefix(nil))
}

func TestApp_TabCompletesCommand(t *testing.T) {
	app := NewApp(testCfg)
	app.input.SetValue("/jo")
	app.input.CursorEnd()

	app.handleTabCompletion()

	require.Equal(t, "/join ", app.input.Value())
}

func TestApp_HelpCommandSwitchesView(t *testing.T) {
	app := NewApp(testCfg)
	app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	cmd := app.executeCommand("/help")

	require.Nil(t, cmd)
	require.Equal(t, viewHelp, app.view)
	require.Contains(t, app.viewport.View(), "/join <roomId> <nickname>")
}

func TestApp_CommandsValidateArguments(t *testing.T) {
	req := require.New(t)
	app := NewApp(testCfg)

	req.Nil(app.executeCommand("/join abc12345"))
	req.Equal(logLevelError, app.logLine.level)
	req.Contains(app.logLine.body, "Usage")

	req.Nil(app.executeCommand("/create general"))
	req.Contains(app.logLine.body, "Authenticate")

	req.Nil(app.executeCommand("/leave"))
	req.Contains(app.logLine.body, "No active room")

	req.Nil(app.executeCommand("/bogus"))
	req.Contains(app.logLine.body, "not implemented")

	req.Nil(app.sendChatMessage("hello"))
	req.Contains(app.logLine.body, "Not connected")
}

func TestApp_RoomCreatedHintUsesPrefix(t *testing.T) {
	req := require.New(t)
	app := NewApp(config.ClientConfig{ServerURL: "http://localhost:8080", CommandPrefix: "!"})

	app.handleRoomCreated(roomCreatedMsg{room: httpapi.RoomResponse{RoomID: "abc12345", Name: "general"}})

	req.Contains(app.logLine.body, "!join abc12345")
	req.NotContains(app.logLine.body, "/join")
}

func TestApp_RendersOwnMessagesApart(t *testing.T) {
	req := require.New(t)
	app := NewApp(testCfg)
	app.nickname = "alice"

	own := app.formatChatMessage("alice", "hi", time.Now())
	other := app.formatChatMessage("bob", "hello", time.Now())
	notice := app.formatNotice(protocol.LeftNotice("bob", time.Now()))

	req.Equal(lineOwn, own.kind)
	req.Equal(lineOther, other.kind)
	req.Equal(lineSystem, notice.kind)
	req.Contains(notice.text, "bob left the room")
}

func TestApp_SessionEventsForOtherRoomsIgnored(t *testing.T) {
	req := require.New(t)
	app := NewApp(testCfg)
	session := &Session{events: make(chan protocol.Outbound), done: make(chan struct{})}
	app.session = session
	app.room = "abc12345"

	app.handleSessionEvent(sessionEventMsg{session: session, event: protocol.NewMessage{RoomID: "other000", Sender: "x", Text: "y"}})
	req.Empty(app.chatHistory)

	app.handleSessionEvent(sessionEventMsg{session: session, event: protocol.NewMessage{RoomID: "abc12345", Sender: "x", Text: "y"}})
	req.Len(app.chatHistory, 1)

	app.handleSessionEvent(sessionEventMsg{session: session, event: protocol.ErrorEvent{Message: chat.MsgSendFailed}})
	req.Equal(logLevelError, app.logLine.level)
	req.Contains(app.logLine.body, chat.MsgSendFailed)
}

func TestAPIClient_RoomLifecycle(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)
	ctx := context.Background()
	api := NewAPIClient(srv.URL)

	_, err := api.CreateRoom(ctx, "general")
	var apiErr *apiError
	req.ErrorAs(err, &apiErr)
	req.Equal(401, apiErr.Status)

	token, err := api.Register(ctx, "alice", "secret123")
	req.NoError(err)
	api.SetToken(token.Token)

	room, err := api.CreateRoom(ctx, "general")
	req.NoError(err)
	req.Len(room.RoomID, storage.RoomIDLength)

	rooms, err := api.ListRooms(ctx)
	req.NoError(err)
	req.Len(rooms, 1)

	found, err := api.Room(ctx, room.RoomID)
	req.NoError(err)
	req.Equal("general", found.Name)

	_, err = api.Room(ctx, "missing0")
	req.ErrorAs(err, &apiErr)
	req.Equal("Room not found", apiErr.Message)

	history, err := api.History(ctx, room.RoomID)
	req.NoError(err)
	req.Empty(history)
}

func TestSession_ChatRoundTrip(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)
	ctx := context.Background()

	session, err := NewSession(srv.URL)
	req.NoError(err)
	req.NoError(session.Connect(ctx))
	defer session.Close()

	req.NoError(session.Send(ctx, protocol.JoinEvent{RoomID: "abc12345", Nickname: "alice"}))
	req.NoError(session.Send(ctx, protocol.SendEvent{RoomID: "abc12345", Sender: "alice", Text: "hi"}))

	select {
	case event := <-session.Events():
		msg, ok := event.(protocol.NewMessage)
		req.True(ok)
		req.Equal("hi", msg.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo received")
	}

	history, err := NewAPIClient(srv.URL).History(ctx, "abc12345")
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("alice", history[0].Sender)
}

func TestApp_QuitClosesSession(t *testing.T) {
	app := NewApp(testCfg)
	cmd := app.executeCommand("/quit")
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	require.True(t, ok)
}
