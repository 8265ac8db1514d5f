package internal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

type (
	connectedMsg     struct{}
	connectFailedMsg struct{ err error }
	disconnectedMsg  struct{ err error }
	reconnectMsg     struct{}
	errorMsg         error
	incomingMsg      struct{ envelope Envelope }
	authDoneMsg      struct {
		resp *loginResponse
		err  error
	}
	mutualsMsg struct {
		resp *mutualsResponse
		err  error
	}
	followDoneMsg struct {
		username string
		followed bool
		err      error
	}
)

func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		// Ctrl+C bails out from any screen.
		if typedMessage.Type == tea.KeyCtrlC {
			model.closeSocket()
			return model, tea.Quit
		}
		switch model.mode {
		case modeAuthMenu:
			switch typedMessage.String() {
			case "1", "l", "L":
				model.authIntent = authIntentLogin
				return model, model.startUsernamePrompt()
			case "2", "s", "S":
				model.authIntent = authIntentSignup
				return model, model.startUsernamePrompt()
			case "q", "Q":
				return model, tea.Quit
			}
			return model, nil
		case modeAuthUsername:
			switch typedMessage.Type {
			case tea.KeyEnter:
				trimmed := strings.TrimSpace(model.textInput.Value())
				if trimmed == "" {
					return model, nil
				}
				model.pendingUsername = trimmed
				model.mode = modeAuthPassword
				model.textInput.SetValue("")
				model.textInput.Placeholder = "password…"
				model.textInput.Prompt = "pass> "
				model.textInput.EchoMode = textinput.EchoPassword
				return model, nil
			case tea.KeyEsc:
				return model, model.backToMenu()
			}
			var cmd tea.Cmd
			model.textInput, cmd = model.textInput.Update(typedMessage)
			return model, cmd
		case modeAuthPassword:
			switch typedMessage.Type {
			case tea.KeyEnter:
				password := model.textInput.Value()
				if password == "" {
					return model, nil
				}
				model.pendingPassword = password
				model.loading = true
				if model.authIntent == authIntentSignup {
					return model, model.signupCmd(model.pendingUsername, password)
				}
				return model, model.loginCmd(model.pendingUsername, password)
			case tea.KeyEsc:
				return model, model.backToMenu()
			}
			var cmd tea.Cmd
			model.textInput, cmd = model.textInput.Update(typedMessage)
			return model, cmd
		case modeFeed:
			if typedMessage.Type == tea.KeyEnter {
				return model.handleFeedInput()
			}
			var command tea.Cmd
			model.textInput, command = model.textInput.Update(typedMessage)
			return model, command
		}

	case authDoneMsg:
		model.loading = false
		if typedMessage.err != nil {
			model.note(fmt.Sprintf("auth failed: %v", typedMessage.err))
			return model, model.backToMenu()
		}
		model.username = typedMessage.resp.Username
		model.token = typedMessage.resp.Token
		model.userID = typedMessage.resp.UserID
		model.pendingPassword = ""
		_ = saveSessionToDisk(model.sessionPath, sessionFile{
			Username: model.username,
			Token:    model.token,
			UserID:   model.userID,
		})
		model.enterFeed()
		model.note("logged in as " + model.username)
		return model, tea.Batch(model.connectCmd(), model.mutualsCmd())

	case connectedMsg:
		model.isConnected = true
		model.connectionError = nil
		return model, model.readOnceCmd()

	case incomingMsg:
		cmd := model.applyEvent(typedMessage.envelope)
		return model, tea.Batch(cmd, model.readOnceCmd())

	case disconnectedMsg:
		model.isConnected = false
		model.connectionError = typedMessage.err
		return model, model.scheduleReconnect()

	case connectFailedMsg:
		model.isConnected = false
		model.connectionError = typedMessage.err
		if model.mode == modeFeed {
			return model, model.scheduleReconnect()
		}
		return model, nil

	case reconnectMsg:
		if model.mode == modeFeed && !model.isConnected {
			return model, model.connectCmd()
		}
		return model, nil

	case mutualsMsg:
		if typedMessage.err != nil {
			model.note(fmt.Sprintf("mutuals fetch failed: %v", typedMessage.err))
			return model, nil
		}
		model.onlineMutuals = typedMessage.resp.Online
		model.offlineMutuals = typedMessage.resp.Offline
		return model, nil

	case followDoneMsg:
		if typedMessage.err != nil {
			model.note(fmt.Sprintf("follow change failed: %v", typedMessage.err))
			return model, nil
		}
		verb := "followed"
		if !typedMessage.followed {
			verb = "unfollowed"
		}
		model.note(verb + " " + typedMessage.username)
		return model, model.mutualsCmd()

	case errorMsg:
		model.connectionError = typedMessage
		return model, tea.Quit
	}
	return model, nil
}

// handleFeedInput parses the command line at the bottom of the feed view.
func (model *TUIModel) handleFeedInput() (tea.Model, tea.Cmd) {
	trimmed := strings.TrimSpace(model.textInput.Value())
	model.textInput.SetValue("")
	if trimmed == "" {
		return model, nil
	}
	if !strings.HasPrefix(trimmed, "/") {
		model.note("commands start with / — try /msg <id> <text>")
		return model, nil
	}
	parts := strings.Fields(trimmed)
	switch strings.ToLower(parts[0]) {
	case "/quit", "/exit":
		model.closeSocket()
		return model, tea.Quit
	case "/logout":
		model.closeSocket()
		return model, model.logoutCmd()
	case "/refresh":
		return model, model.mutualsCmd()
	case "/follow", "/unfollow":
		if len(parts) != 2 {
			model.note("usage: " + parts[0] + " <username>")
			return model, nil
		}
		return model, model.followCmd(parts[1], strings.ToLower(parts[0]) == "/follow")
	case "/msg":
		if len(parts) < 3 {
			model.note("usage: /msg <id> <text>")
			return model, nil
		}
		target, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			model.note("target must be a user id")
			return model, nil
		}
		body := strings.Join(parts[2:], " ")
		model.feed = append(model.feed, feedLine{at: time.Now(), who: model.username, text: body})
		return model, model.sendEventCmd(EventChatMessage, chatInbound{To: target, Body: body})
	case "/typing":
		if len(parts) != 2 {
			model.note("usage: /typing <id>")
			return model, nil
		}
		target, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			model.note("target must be a user id")
			return model, nil
		}
		return model, model.sendEventCmd(EventUserTyping, typingInbound{To: target})
	default:
		model.note("unknown command " + parts[0])
		return model, nil
	}
}

// applyEvent folds one server event into the model.
func (model *TUIModel) applyEvent(envelope Envelope) tea.Cmd {
	switch envelope.Event {
	case EventPing:
		model.note("presence stream live")
	case EventMutualsOnline:
		var users []EnrichedUser
		if err := json.Unmarshal(envelope.Data, &users); err == nil {
			model.onlineMutuals = users
		}
	case EventMutualsOffline:
		var users []EnrichedUser
		if err := json.Unmarshal(envelope.Data, &users); err == nil {
			model.offlineMutuals = users
		}
	case EventMutualLogin:
		var payload PresencePayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil
		}
		model.markOnline(payload)
		model.note(payload.Name + " is online")
	case EventMutualLogout:
		var payload PresencePayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil
		}
		model.markOffline(payload)
		model.note(payload.Name + " went offline")
	case EventChatMessage:
		var payload ChatPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil
		}
		model.feed = append(model.feed, feedLine{
			at:   time.Unix(payload.Ts, 0),
			who:  payload.FromUsername,
			text: payload.Body,
		})
	case EventUserTyping:
		var payload TypingPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil
		}
		model.note(payload.FromUsername + " is typing…")
	}
	return nil
}

func (model *TUIModel) markOnline(payload PresencePayload) {
	kept := model.offlineMutuals[:0]
	var moved *EnrichedUser
	for i := range model.offlineMutuals {
		if model.offlineMutuals[i].ID == payload.ID {
			user := model.offlineMutuals[i]
			moved = &user
			continue
		}
		kept = append(kept, model.offlineMutuals[i])
	}
	model.offlineMutuals = kept
	for _, user := range model.onlineMutuals {
		if user.ID == payload.ID {
			return
		}
	}
	user := EnrichedUser{ID: payload.ID, Name: payload.Name, Avatar: payload.Avatar}
	if moved != nil {
		user = *moved
		user.LastSeen = nil
	}
	model.onlineMutuals = append(model.onlineMutuals, user)
}

func (model *TUIModel) markOffline(payload PresencePayload) {
	kept := model.onlineMutuals[:0]
	var moved *EnrichedUser
	for i := range model.onlineMutuals {
		if model.onlineMutuals[i].ID == payload.ID {
			user := model.onlineMutuals[i]
			moved = &user
			continue
		}
		kept = append(kept, model.onlineMutuals[i])
	}
	model.onlineMutuals = kept
	for _, user := range model.offlineMutuals {
		if user.ID == payload.ID {
			return
		}
	}
	user := EnrichedUser{ID: payload.ID, Name: payload.Name, Avatar: payload.Avatar, LastSeen: payload.LastSeen}
	if moved != nil {
		user = *moved
		user.LastSeen = payload.LastSeen
	}
	model.offlineMutuals = append(model.offlineMutuals, user)
}

func (model *TUIModel) startUsernamePrompt() tea.Cmd {
	model.mode = modeAuthUsername
	model.textInput.SetValue(model.username)
	model.textInput.Placeholder = "username…"
	model.textInput.Prompt = "user> "
	model.textInput.EchoMode = textinput.EchoNormal
	return model.textInput.Focus()
}

func (model *TUIModel) backToMenu() tea.Cmd {
	model.mode = modeAuthMenu
	model.pendingUsername = ""
	model.pendingPassword = ""
	model.textInput.SetValue("")
	model.textInput.Blur()
	return nil
}

func (model *TUIModel) closeSocket() {
	if model.websocketConn != nil {
		_ = model.websocketConn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = model.websocketConn.Close()
	}
}
