// view_connect.go: connection setup screen.
//
// This is the first screen shown when paiask starts. Saved connections are
// cycled with ←/→ on the first row; the remaining rows edit the profile.
// AI settings live in ~/.paiask/config.json.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/DachengChen/paiask/config"
	"github.com/DachengChen/paiask/db"
)

const (
	fieldSaved = iota
	fieldName
	fieldHost
	fieldPort
	fieldUser
	fieldPassword
	fieldDatabase
	fieldSSLMode
	fieldSSHEnabled
	fieldSSHHost
	fieldSSHPort
	fieldSSHUser
	fieldSSHKey
	fieldConnect
	fieldSave
	fieldDelete
	fieldCount // sentinel
)

var fieldLabels = map[int]string{
	fieldSaved:      "Saved",
	fieldName:       "Name",
	fieldHost:       "Host",
	fieldPort:       "Port",
	fieldUser:       "User",
	fieldPassword:   "Password",
	fieldDatabase:   "Database",
	fieldSSLMode:    "SSL Mode",
	fieldSSHEnabled: "SSH Tunnel",
	fieldSSHHost:    "SSH Host",
	fieldSSHPort:    "SSH Port",
	fieldSSHUser:    "SSH User",
	fieldSSHKey:     "SSH Key",
	fieldConnect:    "Connect",
	fieldSave:       "Save",
	fieldDelete:     "Delete",
}

var sslModes = []string{"disable", "require", "verify-ca", "verify-full", "prefer"}

// ConnectView is the connection form.
type ConnectView struct {
	ctx        context.Context
	log        *slog.Logger
	store      *config.ConnectionStore
	fields     []string // field values indexed by field ID
	focus      int
	savedIdx   int
	editing    bool
	err        error
	statusMsg  string
	connecting bool
	width      int
	height     int
}

// NewConnectView creates the form, prefilled with the first saved
// connection when there is one.
func NewConnectView(ctx context.Context, log *slog.Logger, store *config.ConnectionStore) *ConnectView {
	v := &ConnectView{
		ctx:    ctx,
		log:    log,
		store:  store,
		fields: make([]string, fieldCount),
		focus:  fieldSaved,
	}
	v.setConnection(config.DefaultConnection())
	if len(store.Connections) > 0 {
		v.loadSaved(0)
	}
	return v
}

func (v *ConnectView) Name() string { return "Connect" }

func (v *ConnectView) WantsTextInput() bool { return v.editing }

func (v *ConnectView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

func (v *ConnectView) ShortHelp() []KeyBinding {
	if v.editing {
		return []KeyBinding{
			{Key: "Enter/Esc", Desc: "done"},
		}
	}
	return []KeyBinding{
		{Key: "↑/↓", Desc: "move"},
		{Key: "←/→", Desc: "cycle"},
		{Key: "Enter", Desc: "edit / select"},
	}
}

func (v *ConnectView) Init() tea.Cmd { return nil }

func (v *ConnectView) Update(msg tea.Msg) (View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if v.editing {
			return v.handleEditing(msg)
		}
		return v.handleNavigation(msg)

	case ConnectErrorMsg:
		v.connecting = false
		v.err = msg.Err
		v.statusMsg = ""
		return v, nil
	}
	return v, nil
}

func (v *ConnectView) handleNavigation(msg tea.KeyMsg) (View, tea.Cmd) {
	switch msg.String() {
	case "up", "k", "shift+tab":
		v.move(-1)
	case "down", "j", "tab":
		v.move(1)
	case "left", "h":
		v.cycle(-1)
	case "right", "l":
		v.cycle(1)
	case "enter":
		return v, v.action()
	}
	return v, nil
}

func (v *ConnectView) handleEditing(msg tea.KeyMsg) (View, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter, tea.KeyEsc:
		v.editing = false
	case tea.KeyBackspace:
		if s := v.fields[v.focus]; len(s) > 0 {
			r := []rune(s)
			v.fields[v.focus] = string(r[:len(r)-1])
		}
	case tea.KeyRunes:
		v.fields[v.focus] += string(msg.Runes)
	case tea.KeySpace:
		v.fields[v.focus] += " "
	}
	return v, nil
}

// move shifts focus, skipping SSH rows while the tunnel is off.
func (v *ConnectView) move(dir int) {
	next := v.focus
	for {
		next = (next + dir + fieldCount) % fieldCount
		if !v.isSSHField(next) || v.sshEnabled() {
			break
		}
	}
	v.focus = next
}

func (v *ConnectView) cycle(dir int) {
	switch v.focus {
	case fieldSaved:
		if n := len(v.store.Connections); n > 0 {
			v.loadSaved((v.savedIdx + dir + n) % n)
		}
	case fieldSSLMode:
		idx := 0
		for i, m := range sslModes {
			if m == v.fields[fieldSSLMode] {
				idx = i
			}
		}
		v.fields[fieldSSLMode] = sslModes[(idx+dir+len(sslModes))%len(sslModes)]
	case fieldSSHEnabled:
		v.toggleSSH()
	}
}

func (v *ConnectView) action() tea.Cmd {
	switch v.focus {
	case fieldSaved, fieldConnect:
		return v.connect()
	case fieldSSLMode:
		v.cycle(1)
	case fieldSSHEnabled:
		v.toggleSSH()
	case fieldSave:
		v.saveConnection()
	case fieldDelete:
		v.deleteConnection()
	default:
		v.editing = true
	}
	return nil
}

func (v *ConnectView) connect() tea.Cmd {
	if v.connecting {
		return nil
	}
	conn := v.buildConnection()
	cfg := conn.ToConfig()

	v.connecting = true
	v.statusMsg = "Connecting to " + cfg.Redacted() + "..."
	v.err = nil

	ctx, log := v.ctx, v.log
	return func() tea.Msg {
		database, err := db.Connect(ctx, log, cfg)
		if err != nil {
			return ConnectErrorMsg{Err: err}
		}
		return ConnectedMsg{DB: database, Cfg: cfg, Conn: conn}
	}
}

func (v *ConnectView) saveConnection() {
	name := strings.TrimSpace(v.fields[fieldName])
	if name == "" {
		v.err = fmt.Errorf("enter a connection name first")
		return
	}
	conn := v.buildConnection()
	v.store.Add(conn)
	if err := v.store.Save(); err != nil {
		v.err = err
		return
	}
	v.err = nil
	v.statusMsg = fmt.Sprintf("Connection '%s' saved", name)
	for i, c := range v.store.Connections {
		if c.Name == name {
			v.savedIdx = i
		}
	}
}

func (v *ConnectView) deleteConnection() {
	if len(v.store.Connections) == 0 {
		return
	}
	name := v.store.Connections[v.savedIdx].Name
	v.store.Delete(name)
	if err := v.store.Save(); err != nil {
		v.err = err
		return
	}
	v.err = nil
	v.statusMsg = fmt.Sprintf("Connection '%s' deleted", name)
	if v.savedIdx >= len(v.store.Connections) {
		v.savedIdx = 0
	}
}

func (v *ConnectView) buildConnection() config.Connection {
	return config.Connection{
		Name:     strings.TrimSpace(v.fields[fieldName]),
		Host:     v.fields[fieldHost],
		Port:     v.fields[fieldPort],
		User:     v.fields[fieldUser],
		Password: v.fields[fieldPassword],
		Database: v.fields[fieldDatabase],
		SSLMode:  v.fields[fieldSSLMode],
		SSH: config.SSHEntry{
			Enabled: v.sshEnabled(),
			Host:    v.fields[fieldSSHHost],
			Port:    v.fields[fieldSSHPort],
			User:    v.fields[fieldSSHUser],
			KeyPath: v.fields[fieldSSHKey],
		},
	}
}

func (v *ConnectView) loadSaved(idx int) {
	if idx < 0 || idx >= len(v.store.Connections) {
		return
	}
	v.setConnection(v.store.Connections[idx])
	v.savedIdx = idx
}

func (v *ConnectView) setConnection(c config.Connection) {
	v.fields[fieldName] = c.Name
	v.fields[fieldHost] = c.Host
	v.fields[fieldPort] = c.Port
	v.fields[fieldUser] = c.User
	v.fields[fieldPassword] = c.Password
	v.fields[fieldDatabase] = c.Database
	v.fields[fieldSSLMode] = c.SSLMode
	v.fields[fieldSSHEnabled] = "no"
	if c.SSH.Enabled {
		v.fields[fieldSSHEnabled] = "yes"
	}
	v.fields[fieldSSHHost] = c.SSH.Host
	v.fields[fieldSSHPort] = c.SSH.Port
	v.fields[fieldSSHUser] = c.SSH.User
	v.fields[fieldSSHKey] = c.SSH.KeyPath
}

func (v *ConnectView) toggleSSH() {
	if v.sshEnabled() {
		v.fields[fieldSSHEnabled] = "no"
	} else {
		v.fields[fieldSSHEnabled] = "yes"
	}
}

func (v *ConnectView) sshEnabled() bool { return v.fields[fieldSSHEnabled] == "yes" }

func (v *ConnectView) isSSHField(f int) bool { return f >= fieldSSHHost && f <= fieldSSHKey }

func (v *ConnectView) View() string {
	var lines []string
	lines = append(lines, StyleTitle.Render("Connect to PostgreSQL"))

	for f := 0; f < fieldCount; f++ {
		if v.isSSHField(f) && !v.sshEnabled() {
			continue
		}
		if f == fieldConnect {
			lines = append(lines, "")
		}
		lines = append(lines, v.renderRow(f))
	}

	lines = append(lines, "")
	switch {
	case v.err != nil:
		lines = append(lines, StyleError.Render("✗ "+v.err.Error()))
	case v.statusMsg != "":
		lines = append(lines, StyleSuccess.Render(v.statusMsg))
	}
	return strings.Join(lines, "\n")
}

func (v *ConnectView) renderRow(f int) string {
	marker := "  "
	labelStyle := StyleDimmed
	if f == v.focus {
		marker = StylePrompt.Render("▸ ")
		labelStyle = StyleInputFocused
	}

	switch f {
	case fieldConnect, fieldSave, fieldDelete:
		label := "[ " + fieldLabels[f] + " ]"
		if f == v.focus {
			return marker + StyleListItemActive.Render(label)
		}
		return marker + StyleNormal.Render(label)
	}

	value := v.fields[f]
	switch f {
	case fieldSaved:
		value = "(none)"
		if n := len(v.store.Connections); n > 0 {
			value = fmt.Sprintf("◂ %s ▸  (%d/%d)", v.store.Connections[v.savedIdx].Name, v.savedIdx+1, n)
		}
	case fieldPassword:
		value = strings.Repeat("•", len([]rune(value)))
	}
	if f == v.focus && v.editing {
		value += "█"
	}
	return marker + labelStyle.Render(fmt.Sprintf("%-11s", fieldLabels[f])) + " " + StyleNormal.Render(value)
}
