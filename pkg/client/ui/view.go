package ui

import (
	"fmt"
	"strings"

	"github.com/76creates/stickers/flexbox"
	"github.com/aeolun/kindred/pkg/protocol"
	"github.com/aeolun/kindred/pkg/store"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	typingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	composerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))

	statusColors = map[string]lipgloss.Color{
		"open":           lipgloss.Color("42"),
		"connecting":     lipgloss.Color("214"),
		"reconnect_wait": lipgloss.Color("214"),
		"disconnected":   lipgloss.Color("196"),
	}
)

// build renders the page the router picks for snap
func (m *Model) build(snap store.Snapshot) Frame {
	page := Route(snap)

	var (
		body     string
		bindings []Binding
	)
	switch page {
	case PageLoading:
		body, bindings = m.renderLoading()
	case PageLogin:
		body, bindings = m.renderLogin()
	case PageTopics:
		body, bindings = m.renderTopics(snap)
	case PageTopicDetail:
		body, bindings = m.renderTopicDetail(snap)
	case PageConversations:
		body, bindings = m.renderConversations(snap)
	case PageGroups:
		body, bindings = m.renderGroups(snap)
	case PageSessions:
		body, bindings = m.renderSessions(snap)
	case PageUsers:
		body, bindings = m.renderUsers(snap)
	case PageProfile:
		body, bindings = m.renderProfile(snap)
	case PageAdmin:
		body, bindings = m.renderAdmin(snap)
	}

	if snap.Authenticated() && page != PageLoading {
		bindings = append(bindings, m.navigationBindings(snap)...)
	}
	bindings = append(bindings, bind(ScopeGlobal, "quit", func() tea.Cmd { return tea.Quit }, "ctrl+c"))

	return Frame{
		Page:     page,
		Content:  m.layout(snap, page, body, bindings),
		Bindings: bindings,
	}
}

// layout stacks header, page body, notice and footer
func (m *Model) layout(snap store.Snapshot, page Page, body string, bindings []Binding) string {
	width, height := m.size()
	layout := flexbox.New(width, height)

	headerRow := layout.NewRow().AddCells(
		flexbox.NewCell(1, 1).SetContent(m.renderHeader(snap, page, width)),
	)
	contentRow := layout.NewRow().AddCells(
		flexbox.NewCell(1, max(height-3, 1)).SetContent(body),
	)
	noticeRow := layout.NewRow().AddCells(
		flexbox.NewCell(1, 1).SetContent(noticeStyle.Render(snap.Notice)),
	)
	footerRow := layout.NewRow().AddCells(
		flexbox.NewCell(1, 1).SetContent(footerHelp(bindings, m.activeScope())),
	)

	layout.AddRows([]*flexbox.Row{headerRow, contentRow, noticeRow, footerRow})
	return layout.Render()
}

func (m *Model) renderHeader(snap store.Snapshot, page Page, width int) string {
	left := "Kindred · " + string(page)
	if user := snap.Session.CurrentUser; user != nil {
		left += " · " + user.Name()
	}

	status := snap.ChannelStatus
	color, ok := statusColors[status]
	if !ok {
		color = lipgloss.Color("241")
	}
	right := lipgloss.NewStyle().Foreground(color).Render("● " + status)

	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return headerStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m *Model) navigationBindings(snap store.Snapshot) []Binding {
	to := func(view store.View) func() tea.Cmd {
		return func() tea.Cmd { return m.navigate(view, store.NavParams{}) }
	}
	bindings := []Binding{
		bind(ScopeList, "topics", to(store.ViewTopics), "1"),
		bind(ScopeList, "messages", to(store.ViewConversations), "2"),
		bind(ScopeList, "groups", to(store.ViewGroups), "3"),
		bind(ScopeList, "sessions", to(store.ViewSessions), "4"),
		bind(ScopeList, "users", to(store.ViewUsers), "5"),
		bind(ScopeList, "profile", to(store.ViewProfile), "6"),
	}
	if isSuperAdmin(snap) {
		bindings = append(bindings, bind(ScopeList, "admin", to(store.ViewAdmin), "7"))
	}
	return append(bindings, bind(ScopeGlobal, "logout", m.logout, "ctrl+x"))
}

func (m *Model) redraw() tea.Cmd {
	m.scheduler.Render()
	return nil
}

// cycleFocus moves focus to the field after the focused one
func (m *Model) cycleFocus(fields ...field) func() tea.Cmd {
	return func() tea.Cmd {
		next := fields[0]
		for i, f := range fields {
			if f == m.focus {
				next = fields[(i+1)%len(fields)]
				break
			}
		}
		m.focusField(next)
		return m.redraw()
	}
}

func (m *Model) blur() tea.Cmd {
	m.focusField(fieldNone)
	return m.redraw()
}

// listBindings are the cursor keys every list page shares
func (m *Model) listBindings(page Page, length int) []Binding {
	return []Binding{
		bind(ScopeList, "up", func() tea.Cmd { return m.moveCursor(page, -1, length) }, "up", "k"),
		bind(ScopeList, "down", func() tea.Cmd { return m.moveCursor(page, 1, length) }, "down", "j"),
	}
}

func (m *Model) renderList(page Page, rows []string) string {
	if len(rows) == 0 {
		return mutedStyle.Render("Nothing here yet.")
	}
	selected := m.cursorAt(page, len(rows))
	var b strings.Builder
	for i, row := range rows {
		if i == selected {
			b.WriteString(selectedStyle.Render("> " + row))
		} else {
			b.WriteString("  " + row)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// === Loading and login ===

func (m *Model) renderLoading() (string, []Binding) {
	return m.spinner.View() + " Resuming session...", nil
}

func (m *Model) renderLogin() (string, []Binding) {
	title := "Sign in"
	fields := []field{fieldUsername, fieldPassword}
	if m.registering {
		title = "Create account"
		fields = append(fields, fieldDisplayName)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(title) + "\n\n")
	for _, f := range fields {
		b.WriteString(m.input(f).View() + "\n")
	}

	toggle := "register"
	if m.registering {
		toggle = "sign in"
	}
	bindings := []Binding{
		bind(ScopeInput, "submit", m.submitCredentials, "enter"),
		bind(ScopeInput, "next field", m.cycleFocus(fields...), "tab"),
		bind(ScopeGlobal, toggle, func() tea.Cmd {
			m.registering = !m.registering
			if !m.registering && m.focus == fieldDisplayName {
				m.focusField(fieldUsername)
			}
			return m.redraw()
		}, "ctrl+n"),
		bind(ScopeList, "edit", m.cycleFocus(fields...), "tab", "enter"),
	}
	return b.String(), bindings
}

// === Topics ===

func (m *Model) renderTopics(snap store.Snapshot) (string, []Binding) {
	if m.creating {
		var b strings.Builder
		b.WriteString(titleStyle.Render("New topic") + "\n\n")
		b.WriteString(m.input(fieldTopicTitle).View() + "\n")
		b.WriteString(m.input(fieldTopicDescription).View() + "\n")
		return b.String(), []Binding{
			bind(ScopeInput, "create", m.createTopic, "enter"),
			bind(ScopeInput, "next field", m.cycleFocus(fieldTopicTitle, fieldTopicDescription), "tab"),
			bind(ScopeInput, "cancel", func() tea.Cmd {
				m.creating = false
				return m.blur()
			}, "esc"),
		}
	}

	rows := make([]string, len(snap.Topics))
	for i, t := range snap.Topics {
		vote := ""
		if t.UserVote != "" {
			vote = " (" + t.UserVote + ")"
		}
		rows[i] = fmt.Sprintf("%s  %s", t.Title,
			mutedStyle.Render(fmt.Sprintf("▲%d%s · %d messages", t.VotesCount, vote, t.MessagesCount)))
	}
	body := titleStyle.Render("Topics") + "\n\n" + m.renderList(PageTopics, rows)

	bindings := m.listBindings(PageTopics, len(snap.Topics))
	bindings = append(bindings,
		bind(ScopeList, "new topic", func() tea.Cmd {
			m.creating = true
			m.focusField(fieldTopicTitle)
			return m.redraw()
		}, "n"),
		bind(ScopeList, "refresh", m.fetchTopics, "r"),
	)
	if len(snap.Topics) > 0 {
		topic := snap.Topics[m.cursorAt(PageTopics, len(snap.Topics))]
		bindings = append(bindings,
			bind(ScopeList, "open", func() tea.Cmd {
				return m.navigate(store.ViewTopicDetail, store.NavParams{TopicID: topic.ID})
			}, "enter"),
			bind(ScopeList, "upvote", func() tea.Cmd { return m.voteTopic(topic.ID, "up") }, "+"),
			bind(ScopeList, "downvote", func() tea.Cmd { return m.voteTopic(topic.ID, "down") }, "-"),
		)
	}
	return body, bindings
}

func topicMessages(snap store.Snapshot, topicID string) []protocol.Message {
	room := protocol.TopicRoom(topicID)
	var out []protocol.Message
	for _, msg := range snap.Messages {
		if protocol.MessageRoom(msg) == room {
			out = append(out, msg)
		}
	}
	return out
}

// typingText summarises who else is typing in a room
func typingText(userIDs []string, self string) string {
	n := 0
	for _, id := range userIDs {
		if id != self {
			n++
		}
	}
	switch n {
	case 0:
		return ""
	case 1:
		return "1 user typing..."
	default:
		return fmt.Sprintf("%d users typing...", n)
	}
}

func formatMessage(msg protocol.Message) string {
	if msg.IsDeleted {
		return mutedStyle.Render(msg.AuthorName() + ": [deleted]")
	}
	line := msg.AuthorName() + ": " + msg.Content
	if msg.IsEdited {
		line += mutedStyle.Render(" (edited)")
	}
	if len(msg.Reactions) > 0 {
		var reactions []string
		for _, r := range msg.Reactions {
			if r.Count > 1 {
				reactions = append(reactions, fmt.Sprintf("%s %d", r.Emoji, r.Count))
			} else {
				reactions = append(reactions, r.Emoji)
			}
		}
		line += "  " + mutedStyle.Render(strings.Join(reactions, " "))
	}
	return line
}

func (m *Model) renderTopicDetail(snap store.Snapshot) (string, []Binding) {
	topicID := snap.View.TopicID
	title := "Topic"
	for _, t := range snap.Topics {
		if t.ID == topicID {
			title = t.Title
			break
		}
	}

	messages := topicMessages(snap, topicID)
	rows := make([]string, len(messages))
	for i, msg := range messages {
		rows[i] = formatMessage(msg)
	}

	self := ""
	if snap.Session.CurrentUser != nil {
		self = snap.Session.CurrentUser.ID
	}
	typing := typingText(snap.Typing[protocol.TopicRoom(topicID)], self)

	var b strings.Builder
	b.WriteString(titleStyle.Render(title) + "\n\n")
	b.WriteString(m.renderList(PageTopicDetail, rows))
	b.WriteString(typingStyle.Render(typing) + "\n")
	if m.editingID != "" {
		b.WriteString(mutedStyle.Render("Editing message") + "\n")
	}
	b.WriteString(composerStyle.Render(m.composer.View()))

	bindings := []Binding{
		bind(ScopeInput, "send", m.submitComposer, "enter"),
		bind(ScopeInput, "stop typing", func() tea.Cmd {
			if m.editingID != "" {
				m.editingID = ""
				m.resetInputs(fieldComposer)
			}
			return m.blur()
		}, "esc"),
	}
	bindings = append(bindings, m.listBindings(PageTopicDetail, len(messages))...)
	bindings = append(bindings,
		bind(ScopeList, "write", func() tea.Cmd {
			m.focusField(fieldComposer)
			return m.redraw()
		}, "i"),
		bind(ScopeList, "back", func() tea.Cmd {
			return m.navigate(store.ViewTopics, store.NavParams{})
		}, "esc"),
		bind(ScopeList, "refresh", func() tea.Cmd { return m.fetchMessages(topicID) }, "r"),
	)

	if len(messages) > 0 {
		msg := messages[m.cursorAt(PageTopicDetail, len(messages))]
		bindings = append(bindings, bind(ScopeList, "react", func() tea.Cmd { return m.react(msg.ID, "👍") }, "+"))
		if msg.UserID == self && !msg.IsDeleted {
			bindings = append(bindings,
				bind(ScopeList, "edit", func() tea.Cmd {
					m.editingID = msg.ID
					m.composer.SetValue(msg.Content)
					m.focusField(fieldComposer)
					return m.redraw()
				}, "e"),
				bind(ScopeList, "delete", func() tea.Cmd { return m.deleteMessage(msg.ID) }, "d"),
			)
		}
	}
	return b.String(), bindings
}

// === Conversations ===

func (m *Model) renderConversations(snap store.Snapshot) (string, []Binding) {
	rows := make([]string, len(snap.Conversations))
	for i, c := range snap.Conversations {
		unread := ""
		if c.UnreadCount > 0 {
			unread = selectedStyle.Render(fmt.Sprintf(" (%d new)", c.UnreadCount))
		}
		rows[i] = c.OtherUser.Name() + unread + "  " + mutedStyle.Render(c.LastMessage)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Messages") + "\n\n")
	b.WriteString(m.renderList(PageConversations, rows))
	if m.recipient != nil {
		b.WriteString("\nTo " + m.recipient.Name() + "\n")
		b.WriteString(composerStyle.Render(m.composer.View()))
	}

	bindings := []Binding{
		bind(ScopeInput, "send", m.submitComposer, "enter"),
		bind(ScopeInput, "cancel", m.blur, "esc"),
	}
	bindings = append(bindings, m.listBindings(PageConversations, len(snap.Conversations))...)
	bindings = append(bindings, bind(ScopeList, "refresh", m.fetchConversations, "r"))
	if len(snap.Conversations) > 0 {
		other := snap.Conversations[m.cursorAt(PageConversations, len(snap.Conversations))].OtherUser
		bindings = append(bindings, bind(ScopeList, "reply", func() tea.Cmd {
			m.recipient = &other
			m.focusField(fieldComposer)
			return m.redraw()
		}, "enter", "i"))
	}
	return b.String(), bindings
}

// === Groups and sessions ===

func (m *Model) renderGroups(snap store.Snapshot) (string, []Binding) {
	rows := make([]string, len(snap.Groups))
	for i, g := range snap.Groups {
		marker := " "
		if g.IsMember {
			marker = "✓"
		}
		rows[i] = fmt.Sprintf("%s %s  %s", marker, g.Name,
			mutedStyle.Render(fmt.Sprintf("%d members · %s", g.MembersCount, g.Description)))
	}
	body := titleStyle.Render("Groups") + "\n\n" + m.renderList(PageGroups, rows)

	bindings := m.listBindings(PageGroups, len(snap.Groups))
	bindings = append(bindings, bind(ScopeList, "refresh", m.fetchGroups, "r"))
	if len(snap.Groups) > 0 {
		group := snap.Groups[m.cursorAt(PageGroups, len(snap.Groups))]
		label := "join"
		if group.IsMember {
			label = "leave"
		}
		bindings = append(bindings, bind(ScopeList, label, func() tea.Cmd { return m.toggleMembership(group) }, "enter"))
	}
	return body, bindings
}

func (m *Model) renderSessions(snap store.Snapshot) (string, []Binding) {
	rows := make([]string, len(snap.Sessions))
	for i, s := range snap.Sessions {
		host := ""
		if s.Psychologist != nil {
			host = " with " + s.Psychologist.Name()
		}
		rows[i] = fmt.Sprintf("%s%s  %s", s.Title, host, mutedStyle.Render(fmt.Sprintf("%s · %s · %d min · %s",
			s.SessionType, s.ScheduledAt.Local().Format("Jan 2 15:04"), s.DurationMinutes, s.Status)))
	}
	body := titleStyle.Render("Sessions") + "\n\n" + m.renderList(PageSessions, rows)

	bindings := m.listBindings(PageSessions, len(snap.Sessions))
	bindings = append(bindings, bind(ScopeList, "refresh", func() tea.Cmd {
		return m.fetchFor(store.ViewState{Current: store.ViewSessions})
	}, "r"))
	return body, bindings
}

// === Users and profile ===

func (m *Model) renderUsers(snap store.Snapshot) (string, []Binding) {
	rows := make([]string, len(snap.Users))
	for i, u := range snap.Users {
		online := mutedStyle.Render("offline")
		if u.IsOnline {
			online = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("online")
		}
		rows[i] = fmt.Sprintf("%s (@%s)  %s", u.Name(), u.Username, online)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("People") + "\n\n")
	b.WriteString(m.input(fieldSearch).View() + "\n\n")
	b.WriteString(m.renderList(PageUsers, rows))

	bindings := []Binding{
		bind(ScopeInput, "search", func() tea.Cmd {
			m.focusField(fieldNone)
			m.cursors[PageUsers] = 0
			m.scheduler.Render()
			return m.searchUsers(m.value(fieldSearch))
		}, "enter"),
		bind(ScopeInput, "cancel", m.blur, "esc"),
		bind(ScopeList, "search", func() tea.Cmd {
			m.focusField(fieldSearch)
			return m.redraw()
		}, "/"),
	}
	bindings = append(bindings, m.listBindings(PageUsers, len(snap.Users))...)
	if len(snap.Users) > 0 {
		user := snap.Users[m.cursorAt(PageUsers, len(snap.Users))]
		bindings = append(bindings,
			bind(ScopeList, "message", func() tea.Cmd {
				cmd := m.navigate(store.ViewConversations, store.NavParams{})
				m.recipient = &user
				m.focusField(fieldComposer)
				m.scheduler.Render()
				return cmd
			}, "m"),
			bind(ScopeList, "block", func() tea.Cmd { return m.blockUser(user) }, "b"),
		)
	}
	return b.String(), bindings
}

func (m *Model) renderProfile(snap store.Snapshot) (string, []Binding) {
	user := snap.Session.CurrentUser
	if user == nil {
		return mutedStyle.Render("No profile loaded."), nil
	}

	editing := m.focus == fieldProfileName || m.focus == fieldProfileBio || m.focus == fieldProfileStatus
	profileFields := []field{fieldProfileName, fieldProfileBio, fieldProfileStatus}

	var b strings.Builder
	b.WriteString(titleStyle.Render(user.Name()) + "  " + mutedStyle.Render("@"+user.Username+" · "+string(user.Role)) + "\n\n")
	if editing {
		for _, f := range profileFields {
			b.WriteString(m.input(f).View() + "\n")
		}
	} else {
		b.WriteString("Bio:    " + user.Bio + "\n")
		b.WriteString("Status: " + user.Status + "\n")
	}

	bindings := []Binding{
		bind(ScopeInput, "save", m.saveProfile, "enter"),
		bind(ScopeInput, "next field", m.cycleFocus(profileFields...), "tab"),
		bind(ScopeInput, "cancel", m.blur, "esc"),
		bind(ScopeList, "edit", func() tea.Cmd {
			m.input(fieldProfileName).SetValue(user.DisplayName)
			m.input(fieldProfileBio).SetValue(user.Bio)
			m.input(fieldProfileStatus).SetValue(user.Status)
			m.focusField(fieldProfileName)
			return m.redraw()
		}, "e"),
		bind(ScopeList, "refresh", m.fetchProfile, "r"),
	}
	return b.String(), bindings
}

// === Admin ===

func (m *Model) renderAdmin(snap store.Snapshot) (string, []Binding) {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Administration") + "\n\n")
	if stats := snap.AdminStats; stats != nil {
		fmt.Fprintf(&b, "Users %d (premium %d, basic %d, admins %d) · Topics %d · Groups %d · Messages %d · Sessions %d\n\n",
			stats.TotalUsers, stats.TotalPremiumUsers, stats.TotalBasicUsers, stats.TotalSuperAdmins,
			stats.TotalTopics, stats.TotalGroups, stats.TotalMessages, stats.TotalSessions)
	}

	rows := make([]string, len(snap.Users))
	for i, u := range snap.Users {
		state := "active"
		if !u.IsActive {
			state = "suspended"
		}
		rows[i] = fmt.Sprintf("%s (@%s)  %s", u.Name(), u.Username, mutedStyle.Render(string(u.Role)+" · "+state))
	}
	b.WriteString(m.renderList(PageAdmin, rows))

	bindings := m.listBindings(PageAdmin, len(snap.Users))
	bindings = append(bindings, bind(ScopeList, "refresh", func() tea.Cmd {
		return tea.Batch(m.fetchAdminStats(), m.fetchAdminUsers())
	}, "r"))
	if len(snap.Users) > 0 {
		user := snap.Users[m.cursorAt(PageAdmin, len(snap.Users))]
		bindings = append(bindings,
			bind(ScopeList, "toggle active", func() tea.Cmd { return m.toggleUserActive(user) }, "a"),
			bind(ScopeList, "change role", func() tea.Cmd { return m.cycleUserRole(user) }, "p"),
		)
	}
	return b.String(), bindings
}
