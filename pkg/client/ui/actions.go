package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aeolun/kindred/pkg/api"
	"github.com/aeolun/kindred/pkg/protocol"
	"github.com/aeolun/kindred/pkg/store"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	requestTimeout = 15 * time.Second
	networkMessage = "Network error"
)

// resultMsg carries the outcome of an API command back to the loop. apply
// runs on the program goroutine and is the only place results touch the Store.
type resultMsg struct {
	op    string
	apply func() tea.Cmd
	err   error
}

type apiCall func(ctx context.Context) (apply func() tea.Cmd, err error)

// call runs fn off the loop with a request timeout
func call(op string, fn apiCall) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		apply, err := fn(ctx)
		return resultMsg{op: op, apply: apply, err: err}
	}
}

func (m *Model) applyResult(msg resultMsg) tea.Cmd {
	if msg.err != nil {
		m.logger.Printf("%s failed: %v", msg.op, msg.err)
		var reqErr *api.RequestError
		if errors.As(msg.err, &reqErr) {
			m.store.SetNotice(reqErr.Message)
		} else {
			m.store.SetNotice(networkMessage)
		}
		return nil
	}
	if msg.apply == nil {
		return nil
	}
	return msg.apply()
}

// === Session ===

func (m *Model) submitCredentials() tea.Cmd {
	username := strings.TrimSpace(m.value(fieldUsername))
	password := m.value(fieldPassword)
	if username == "" || password == "" {
		m.store.SetNotice("Username and password are required")
		return nil
	}

	registering := m.registering
	displayName := strings.TrimSpace(m.value(fieldDisplayName))
	op := "login"
	if registering {
		op = "register"
	}

	return call(op, func(ctx context.Context) (func() tea.Cmd, error) {
		var (
			resp *protocol.AuthResponse
			err  error
		)
		if registering {
			resp, err = m.api.Register(ctx, username, password, displayName)
		} else {
			resp, err = m.api.Login(ctx, username, password)
		}
		if err != nil {
			return nil, err
		}
		if resp.Token == "" || resp.User == nil {
			return nil, fmt.Errorf("%s: incomplete auth response", op)
		}
		return func() tea.Cmd { return m.signIn(resp.Token, *resp.User) }, nil
	})
}

// signIn persists the token and starts the session
func (m *Model) signIn(token string, user protocol.User) tea.Cmd {
	if m.state != nil {
		if err := m.state.SetToken(token); err != nil {
			m.logger.Printf("failed to persist token: %v", err)
		}
	}
	m.api.SetToken(token)
	m.resetInputs(fieldUsername, fieldPassword, fieldDisplayName)
	m.registering = false
	m.focusField(fieldNone)
	m.store.SetAuth(token, user)
	return m.fetchFor(m.store.View())
}

// Resume checks a persisted token against the server. An expired token
// clears the session and the persisted copy.
func (m *Model) Resume(token string) tea.Cmd {
	m.store.BeginResume()
	m.api.SetToken(token)

	return call("resume", func(ctx context.Context) (func() tea.Cmd, error) {
		user, err := m.api.Me(ctx)
		if err != nil {
			m.logger.Printf("resume failed: %v", err)
			return func() tea.Cmd {
				m.endSession()
				var reqErr *api.RequestError
				if !errors.As(err, &reqErr) {
					m.store.SetNotice(networkMessage)
				}
				return nil
			}, nil
		}
		return func() tea.Cmd { return m.signIn(token, *user) }, nil
	})
}

// logout marks the user offline while the token is still valid, then ends
// the session
func (m *Model) logout() tea.Cmd {
	return call("logout", func(ctx context.Context) (func() tea.Cmd, error) {
		if m.presence != nil {
			if err := m.presence.OfflineNow(ctx); err != nil {
				m.logger.Printf("offline announcement failed: %v", err)
			}
		}
		return func() tea.Cmd {
			m.endSession()
			return nil
		}, nil
	})
}

func (m *Model) endSession() {
	m.api.SetToken("")
	if m.state != nil {
		if err := m.state.ClearToken(); err != nil {
			m.logger.Printf("failed to clear token: %v", err)
		}
	}
	m.recipient = nil
	m.editingID = ""
	m.creating = false
	m.cursors = make(map[Page]int)
	m.resetInputs(fieldComposer, fieldSearch)
	m.store.ClearAuth()
	m.focusField(fieldUsername)
	m.scheduler.Render()
}

// === Fetching ===

// fetchFor loads the data the view shows
func (m *Model) fetchFor(view store.ViewState) tea.Cmd {
	switch view.Current {
	case store.ViewTopics:
		return m.fetchTopics()
	case store.ViewTopicDetail:
		return m.fetchMessages(view.TopicID)
	case store.ViewConversations:
		return m.fetchConversations()
	case store.ViewGroups:
		return m.fetchGroups()
	case store.ViewSessions:
		return call("sessions", func(ctx context.Context) (func() tea.Cmd, error) {
			sessions, err := m.api.Sessions(ctx)
			return m.replace(store.CollectionSessions, sessions), err
		})
	case store.ViewUsers:
		return m.searchUsers(m.value(fieldSearch))
	case store.ViewProfile:
		return m.fetchProfile()
	case store.ViewAdmin:
		if user := m.store.CurrentUser(); user == nil || user.Role != protocol.RoleSuperAdmin {
			return nil
		}
		return tea.Batch(m.fetchAdminStats(), m.fetchAdminUsers())
	}
	return nil
}

// replace builds an apply step that swaps a collection wholesale. Results
// that land after the session ended are dropped.
func (m *Model) replace(c store.Collection, items any) func() tea.Cmd {
	return func() tea.Cmd {
		if m.store.Token() == "" {
			return nil
		}
		if err := m.store.ApplyFetch(c, items); err != nil {
			m.logger.Printf("apply %s: %v", c, err)
		}
		return nil
	}
}

func (m *Model) fetchTopics() tea.Cmd {
	return call("topics", func(ctx context.Context) (func() tea.Cmd, error) {
		topics, err := m.api.Topics(ctx)
		return m.replace(store.CollectionTopics, topics), err
	})
}

func (m *Model) fetchMessages(topicID string) tea.Cmd {
	if topicID == "" {
		return nil
	}
	return call("messages", func(ctx context.Context) (func() tea.Cmd, error) {
		messages, err := m.api.Messages(ctx, api.MessageQuery{TopicID: topicID})
		return m.replace(store.CollectionMessages, messages), err
	})
}

func (m *Model) fetchConversations() tea.Cmd {
	return call("conversations", func(ctx context.Context) (func() tea.Cmd, error) {
		conversations, err := m.api.Conversations(ctx)
		return m.replace(store.CollectionConversations, conversations), err
	})
}

func (m *Model) fetchGroups() tea.Cmd {
	return call("groups", func(ctx context.Context) (func() tea.Cmd, error) {
		groups, err := m.api.Groups(ctx)
		return m.replace(store.CollectionGroups, groups), err
	})
}

func (m *Model) fetchProfile() tea.Cmd {
	return call("profile", func(ctx context.Context) (func() tea.Cmd, error) {
		user, err := m.api.Me(ctx)
		if err != nil {
			return nil, err
		}
		return func() tea.Cmd {
			m.store.SetCurrentUser(*user)
			return nil
		}, nil
	})
}

func (m *Model) fetchAdminStats() tea.Cmd {
	return call("admin stats", func(ctx context.Context) (func() tea.Cmd, error) {
		stats, err := m.api.AdminStats(ctx)
		if err != nil {
			return nil, err
		}
		return func() tea.Cmd {
			m.store.SetAdminStats(*stats)
			return nil
		}, nil
	})
}

func (m *Model) fetchAdminUsers() tea.Cmd {
	return call("admin users", func(ctx context.Context) (func() tea.Cmd, error) {
		users, err := m.api.AdminUsers(ctx)
		return m.replace(store.CollectionUsers, users), err
	})
}

func (m *Model) searchUsers(query string) tea.Cmd {
	query = strings.TrimSpace(query)
	return call("search users", func(ctx context.Context) (func() tea.Cmd, error) {
		users, err := m.api.SearchUsers(ctx, query)
		return m.replace(store.CollectionUsers, users), err
	})
}

// === Topics and messages ===

func (m *Model) createTopic() tea.Cmd {
	title := strings.TrimSpace(m.value(fieldTopicTitle))
	description := strings.TrimSpace(m.value(fieldTopicDescription))
	if title == "" {
		m.store.SetNotice("A topic needs a title")
		return nil
	}
	return call("create topic", func(ctx context.Context) (func() tea.Cmd, error) {
		if _, err := m.api.CreateTopic(ctx, title, description, true); err != nil {
			return nil, err
		}
		return func() tea.Cmd {
			m.creating = false
			m.resetInputs(fieldTopicTitle, fieldTopicDescription)
			m.focusField(fieldNone)
			return m.fetchTopics()
		}, nil
	})
}

func (m *Model) voteTopic(topicID, voteType string) tea.Cmd {
	return call("vote", func(ctx context.Context) (func() tea.Cmd, error) {
		if err := m.api.VoteTopic(ctx, topicID, voteType); err != nil {
			return nil, err
		}
		return func() tea.Cmd { return m.fetchTopics() }, nil
	})
}

// submitComposer sends whatever the composer is currently addressing
func (m *Model) submitComposer() tea.Cmd {
	content := strings.TrimSpace(m.value(fieldComposer))
	if content == "" {
		return nil
	}

	view := m.store.View()
	switch {
	case m.editingID != "":
		return m.editMessage(m.editingID, content)
	case view.Current == store.ViewTopicDetail:
		return m.sendMessage(view.TopicID, content)
	case view.Current == store.ViewConversations && m.recipient != nil:
		return m.sendDirectMessage(m.recipient.ID, content)
	}
	return nil
}

func (m *Model) sendMessage(topicID, content string) tea.Cmd {
	room := protocol.TopicRoom(topicID)
	if m.typing != nil {
		m.typing.MessageSent(room)
	}
	m.resetInputs(fieldComposer)
	m.scheduler.Render()

	return call("send message", func(ctx context.Context) (func() tea.Cmd, error) {
		_, err := m.api.SendMessage(ctx, api.NewMessage{Content: content, TopicID: &topicID})
		return nil, err
	})
}

func (m *Model) editMessage(id, content string) tea.Cmd {
	m.editingID = ""
	m.resetInputs(fieldComposer)
	m.focusField(fieldNone)
	m.scheduler.Render()

	return call("edit message", func(ctx context.Context) (func() tea.Cmd, error) {
		msg, err := m.api.EditMessage(ctx, id, content)
		if err != nil {
			return nil, err
		}
		return func() tea.Cmd {
			m.store.PatchMessage(*msg)
			return nil
		}, nil
	})
}

func (m *Model) deleteMessage(id string) tea.Cmd {
	return call("delete message", func(ctx context.Context) (func() tea.Cmd, error) {
		if err := m.api.DeleteMessage(ctx, id); err != nil {
			return nil, err
		}
		return func() tea.Cmd {
			m.store.MarkMessageDeleted(id)
			return nil
		}, nil
	})
}

func (m *Model) react(messageID, emoji string) tea.Cmd {
	topicID := m.store.View().TopicID
	return call("react", func(ctx context.Context) (func() tea.Cmd, error) {
		if err := m.api.AddReaction(ctx, messageID, emoji); err != nil {
			return nil, err
		}
		return func() tea.Cmd { return m.fetchMessages(topicID) }, nil
	})
}

// === Direct messages ===

func (m *Model) sendDirectMessage(recipientID, content string) tea.Cmd {
	m.resetInputs(fieldComposer)
	m.scheduler.Render()

	return call("send direct message", func(ctx context.Context) (func() tea.Cmd, error) {
		if _, err := m.api.SendDirectMessage(ctx, recipientID, content); err != nil {
			return nil, err
		}
		return func() tea.Cmd { return m.fetchConversations() }, nil
	})
}

// HandleDirectMessage reacts to a pushed new_dm. It runs on the loop.
func (m *Model) HandleDirectMessage(dm protocol.DirectMessage) {
	if m.store.View().Current == store.ViewConversations {
		if cmd := m.fetchConversations(); cmd != nil {
			go m.runDetached(cmd)
		}
		return
	}
	if !m.notifications {
		return
	}

	content := truncate(dm.Content, 100)
	go func() {
		if err := m.notify("Kindred - new message", content); err != nil {
			m.logger.Printf("Failed to send desktop notification: %v", err)
		}
	}()
}

// truncate shortens s to at most limit runes, ending in "..." when cut
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}

// runDetached executes a command produced outside Update and posts its
// result back onto the loop
func (m *Model) runDetached(cmd tea.Cmd) {
	msg, ok := cmd().(resultMsg)
	if !ok || m.queue == nil {
		return
	}
	m.queue.Post(func() {
		if next := m.applyResult(msg); next != nil {
			go m.runDetached(next)
		}
	})
}

// === Groups ===

func (m *Model) toggleMembership(group protocol.Group) tea.Cmd {
	return call("group membership", func(ctx context.Context) (func() tea.Cmd, error) {
		var err error
		if group.IsMember {
			err = m.api.LeaveGroup(ctx, group.ID)
		} else {
			err = m.api.JoinGroup(ctx, group.ID)
		}
		if err != nil {
			return nil, err
		}
		return func() tea.Cmd { return m.fetchGroups() }, nil
	})
}

// === Users and profile ===

func (m *Model) blockUser(user protocol.User) tea.Cmd {
	return call("block user", func(ctx context.Context) (func() tea.Cmd, error) {
		if err := m.api.BlockUser(ctx, user.ID); err != nil {
			return nil, err
		}
		return func() tea.Cmd {
			m.store.SetNotice(fmt.Sprintf("Blocked %s", user.Name()))
			return nil
		}, nil
	})
}

func (m *Model) saveProfile() tea.Cmd {
	update := api.ProfileUpdate{
		DisplayName: strings.TrimSpace(m.value(fieldProfileName)),
		Bio:         strings.TrimSpace(m.value(fieldProfileBio)),
		Status:      strings.TrimSpace(m.value(fieldProfileStatus)),
	}
	return call("update profile", func(ctx context.Context) (func() tea.Cmd, error) {
		if err := m.api.UpdateProfile(ctx, update); err != nil {
			return nil, err
		}
		return func() tea.Cmd {
			m.focusField(fieldNone)
			return m.fetchProfile()
		}, nil
	})
}

// === Admin ===

func (m *Model) toggleUserActive(user protocol.User) tea.Cmd {
	return call("admin status", func(ctx context.Context) (func() tea.Cmd, error) {
		if err := m.api.AdminSetUserStatus(ctx, user.ID, !user.IsActive); err != nil {
			return nil, err
		}
		return func() tea.Cmd { return m.fetchAdminUsers() }, nil
	})
}

func (m *Model) cycleUserRole(user protocol.User) tea.Cmd {
	next := protocol.RolePremium
	switch user.Role {
	case protocol.RolePremium:
		next = protocol.RoleSuperAdmin
	case protocol.RoleSuperAdmin:
		next = protocol.RoleBasic
	}
	return call("admin role", func(ctx context.Context) (func() tea.Cmd, error) {
		if err := m.api.AdminSetUserRole(ctx, user.ID, next); err != nil {
			return nil, err
		}
		return func() tea.Cmd { return m.fetchAdminUsers() }, nil
	})
}
