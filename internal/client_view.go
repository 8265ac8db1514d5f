package internal

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// pre styled colors// all from lipgloss
var (
	appTitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	subtitleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).MarginTop(1)
	menuBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(1, 2).MarginTop(1)
	menuItemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).PaddingLeft(1)
	menuHotkeyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	menuHintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	feedHeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	connectedStyle   = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle  = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	errorStyle       = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	feedBodyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	feedBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(1, 2).MarginTop(1)
	inputBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	timestampStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	usernameStyle    = lipgloss.NewStyle().Bold(true)
	systemLineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	dividerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	mutualItemStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	mutualEmptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	userColorPalette = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

func (model *TUIModel) View() string {
	switch model.mode {
	case modeAuthMenu:
		return model.renderAuthMenuView()
	case modeAuthUsername, modeAuthPassword:
		return model.renderAuthPromptView()
	default:
		return model.renderFeedView()
	}
}

func (model *TUIModel) renderAuthMenuView() string {
	title := appTitleStyle.Render("SocialWire")
	subtitle := subtitleStyle.Render("See which of your mutuals are around, right from the terminal")

	options := []string{
		renderMenuOption("1", "Log in"),
		renderMenuOption("2", "Sign up"),
		renderMenuOption("q", "Quit"),
	}

	viewSections := []string{
		lipgloss.JoinVertical(lipgloss.Left, title, subtitle),
		menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, options...)),
	}

	if model.loading {
		viewSections = append(viewSections, connectingStyle.Render("Working…"))
	}

	if notices := model.renderSystemNotices(); notices != "" {
		viewSections = append(viewSections, notices)
	}

	viewSections = append(viewSections, menuHintStyle.Render("1) Log in  •  2) Sign up  •  q) Quit"))

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderAuthPromptView() string {
	title := "Log in"
	if model.authIntent == authIntentSignup {
		title = "Create an account"
	}
	hint := "Enter your username"
	if model.mode == modeAuthPassword {
		hint = "Enter your password"
	}

	header := appTitleStyle.Render(title)
	hintText := menuHintStyle.Render(hint)

	viewSections := []string{header, hintText}

	if model.loading {
		viewSections = append(viewSections, connectingStyle.Render("Working…"))
	}

	if notices := model.renderSystemNotices(); notices != "" {
		viewSections = append(viewSections, notices)
	}

	viewSections = append(viewSections, inputBoxStyle.Render(model.textInput.View()))

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderFeedView() string {
	headerSegments := []string{"SocialWire"}
	headerSegments = append(headerSegments, fmt.Sprintf("User %s (#%d)", model.username, model.userID))
	headerSegments = append(headerSegments, fmt.Sprintf("Server %s", model.serverSocketURL))
	header := feedHeaderStyle.Render(strings.Join(headerSegments, dividerStyle))

	var statusLine string
	switch {
	case model.connectionError != nil:
		statusLine = errorStyle.Render("Connection error: " + model.connectionError.Error())
	case model.isConnected:
		statusLine = connectedStyle.Render("Connected")
	default:
		statusLine = connectingStyle.Render("Connecting…")
	}

	mutualsView := menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, model.renderMutualLines()...))

	var feedLines []string
	for _, line := range model.feed {
		feedLines = append(feedLines, model.renderFeedLine(line))
	}
	if len(feedLines) == 0 {
		feedLines = append(feedLines, systemLineStyle.Render("Nothing yet. Events from your mutuals show up here."))
	}
	feedView := feedBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, feedLines...))

	inputView := inputBoxStyle.Render(model.textInput.View())
	footerHint := menuHintStyle.Render("/msg <id> <text> • /typing <id> • /follow <user> • /unfollow <user> • /refresh • /logout • /quit")

	sections := []string{header, statusLine, mutualsView, feedView, inputView, footerHint}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model *TUIModel) renderMutualLines() []string {
	var lines []string
	if len(model.onlineMutuals) == 0 && len(model.offlineMutuals) == 0 {
		return []string{mutualEmptyStyle.Render("No mutuals yet. Follow people who follow you back.")}
	}
	for _, user := range model.onlineMutuals {
		lines = append(lines, mutualItemStyle.Render(fmt.Sprintf("%s %s (#%d)", presenceDot(true), user.Name, user.ID)))
	}
	for _, user := range model.offlineMutuals {
		line := fmt.Sprintf("%s %s (#%d)", presenceDot(false), user.Name, user.ID)
		if user.LastSeen != nil {
			line += mutualEmptyStyle.Render("  last seen " + user.LastSeen.Local().Format("Jan 2 15:04"))
		}
		lines = append(lines, mutualItemStyle.Render(line))
	}
	return lines
}

func renderMenuOption(hotkey string, label string) string {
	key := menuHotkeyStyle.Render(hotkey)
	return lipgloss.JoinHorizontal(lipgloss.Left, key, menuItemStyle.Render(label))
}

// system notices double as the error surface on the auth screens
func (model *TUIModel) renderSystemNotices() string {
	var notices []string
	for _, line := range model.feed {
		if line.who == "system" {
			notices = append(notices, systemLineStyle.Render(line.text))
		}
	}
	if len(notices) == 0 {
		return ""
	}
	if len(notices) > 3 {
		notices = notices[len(notices)-3:]
	}
	return menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, notices...))
}

// renderFeedLine renders a single log line. It stamps the timestamp, picks
// a color for the sender, and indents multi-line text so it stays legible.
func (model *TUIModel) renderFeedLine(line feedLine) string {
	timestamp := timestampStyle.Render(line.at.Format("[15:04:05]"))
	if line.who == "system" {
		body := systemLineStyle.Render(line.text)
		return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", body)
	}

	nameStyle := usernameStyle.Copy().Foreground(colorForUser(line.who))
	if line.who == model.username {
		nameStyle = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	}

	name := nameStyle.Render(line.who)
	bodyText := feedBodyStyle.Render(strings.ReplaceAll(line.text, "\n", "\n   "))

	return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", name, ": ", bodyText)
}

func presenceDot(online bool) string {
	if online {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("●")
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render("○")
}

// color for users
func colorForUser(name string) lipgloss.Color {
	if len(userColorPalette) == 0 {
		return lipgloss.Color("249")
	}
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
