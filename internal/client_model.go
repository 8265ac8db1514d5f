package internal

import (
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

// tui model struct for all the components and modes
type TUIModel struct {
	textInput       textinput.Model
	feed            []feedLine
	onlineMutuals   []EnrichedUser
	offlineMutuals  []EnrichedUser
	serverSocketURL string
	httpBase        string
	sessionPath     string
	username        string
	pendingUsername string
	pendingPassword string
	token           string
	userID          int64
	websocketConn   *websocket.Conn
	writeMutex      sync.Mutex
	isConnected     bool
	connectionError error
	loading         bool
	mode            appMode
	authIntent      authIntent
}

// one line in the event feed
type feedLine struct {
	at   time.Time
	who  string
	text string
}

type appMode int

const (
	modeAuthMenu appMode = iota
	modeAuthUsername
	modeAuthPassword
	modeFeed
)

type authIntent int

const (
	authIntentLogin authIntent = iota
	authIntentSignup
)

func NewTUIModel(serverSocketURL, username string) (*TUIModel, error) {
	httpBase, err := httpBaseFromSocketURL(serverSocketURL)
	if err != nil {
		return nil, err
	}

	input := textinput.New()
	input.CharLimit = 0
	input.Blur()

	model := &TUIModel{
		textInput:       input,
		feed:            make([]feedLine, 0, 64),
		serverSocketURL: serverSocketURL,
		httpBase:        httpBase,
		sessionPath:     defaultSessionPath(),
		username:        username,
		mode:            modeAuthMenu,
	}

	// a saved session lets us skip the auth menu entirely
	if saved, err := loadSessionFromDisk(model.sessionPath); err == nil {
		model.username = saved.Username
		model.token = saved.Token
		model.userID = saved.UserID
		model.enterFeed()
	}
	return model, nil
}

func (model *TUIModel) Init() tea.Cmd {
	if model.mode == modeFeed {
		return tea.Batch(model.connectCmd(), model.mutualsCmd())
	}
	return nil
}

func (model *TUIModel) enterFeed() {
	model.mode = modeFeed
	model.textInput.SetValue("")
	model.textInput.Placeholder = "/msg <id> text  •  /follow <user>  •  /quit"
	model.textInput.Prompt = "> "
	model.textInput.Focus()
}

func (model *TUIModel) note(text string) {
	model.feed = append(model.feed, feedLine{at: time.Now(), who: "system", text: text})
}

// entry for bubbletea
func RunClient(serverSocketURL, username string) error {
	model, err := NewTUIModel(serverSocketURL, username)
	if err != nil {
		return err
	}
	program := tea.NewProgram(model)
	_, err = program.Run()
	return err
}
