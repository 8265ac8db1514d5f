package internal

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

func (model *TUIModel) scheduleReconnect() tea.Cmd {
	const retryDelay = 2 * time.Second
	// we schedule a future poke that nudges Update to try the connection again.
	return tea.Tick(retryDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

// websocket dial with the bearer token in the query string
func (model *TUIModel) connectCmd() tea.Cmd {
	return func() tea.Msg {
		socketURL, err := buildSocketURL(model.serverSocketURL, model.token)
		if err != nil {
			return connectFailedMsg{err: err}
		}
		conn, _, err := websocket.DefaultDialer.Dial(socketURL, nil)
		if err != nil {
			return connectFailedMsg{err: err}
		}
		model.websocketConn = conn
		return connectedMsg{}
	}
}

// readOnceCmd pulls one envelope off the socket; Update reschedules it
// after every message so reads never block the UI loop.
func (model *TUIModel) readOnceCmd() tea.Cmd {
	return func() tea.Msg {
		if model.websocketConn == nil {
			return errorMsg(fmt.Errorf("websocket not connected"))
		}
		messageType, payload, err := model.websocketConn.ReadMessage()
		if err != nil {
			return disconnectedMsg{err: err}
		}
		if messageType != websocket.TextMessage {
			return incomingMsg{}
		}
		var envelope Envelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			return incomingMsg{}
		}
		return incomingMsg{envelope: envelope}
	}
}

func (model *TUIModel) sendEventCmd(event string, data interface{}) tea.Cmd {
	return func() tea.Msg {
		if model.websocketConn == nil {
			return errorMsg(fmt.Errorf("websocket not connected"))
		}
		encoded, err := marshalEvent(event, data)
		if err != nil {
			return errorMsg(err)
		}
		model.writeMutex.Lock()
		err = model.websocketConn.WriteMessage(websocket.TextMessage, encoded)
		model.writeMutex.Unlock()
		if err != nil {
			return errorMsg(err)
		}
		return nil
	}
}

func (model *TUIModel) loginCmd(username, password string) tea.Cmd {
	base := model.httpBase
	return func() tea.Msg {
		resp, err := apiLogin(base, username, password)
		return authDoneMsg{resp: resp, err: err}
	}
}

func (model *TUIModel) signupCmd(username, password string) tea.Cmd {
	base := model.httpBase
	return func() tea.Msg {
		if err := apiSignup(base, username, password); err != nil {
			return authDoneMsg{err: err}
		}
		// signup flows straight into login so the user lands in the feed
		resp, err := apiLogin(base, username, password)
		return authDoneMsg{resp: resp, err: err}
	}
}

func (model *TUIModel) mutualsCmd() tea.Cmd {
	base, token := model.httpBase, model.token
	return func() tea.Msg {
		resp, err := apiGetMutuals(base, token)
		return mutualsMsg{resp: resp, err: err}
	}
}

func (model *TUIModel) followCmd(username string, follow bool) tea.Cmd {
	base, token := model.httpBase, model.token
	return func() tea.Msg {
		var err error
		if follow {
			err = apiFollow(base, token, username)
		} else {
			err = apiUnfollow(base, token, username)
		}
		return followDoneMsg{username: username, followed: follow, err: err}
	}
}

func (model *TUIModel) logoutCmd() tea.Cmd {
	base, token, path := model.httpBase, model.token, model.sessionPath
	return func() tea.Msg {
		_ = apiLogout(base, token)
		_ = deleteSessionFile(path)
		return tea.Quit()
	}
}

func buildSocketURL(base, token string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", fmt.Errorf("invalid scheme for websocket: %s", parsed.Scheme)
	}
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
