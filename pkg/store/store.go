// Package store holds the client's single mutable model: the session, the
// navigation state, the fetched collections and who is typing where.
//
// The Store is single-writer. It is not safe for concurrent use; every call
// must come from the event loop. Each mutation finishes its field updates and
// then invokes the subscribed render callbacks exactly once.
package store

import (
	"fmt"
	"slices"
	"sort"

	"github.com/aeolun/kindred/pkg/protocol"
)

// View identifies a top-level screen
type View int

const (
	ViewLoading View = iota
	ViewLogin
	ViewTopics
	ViewTopicDetail
	ViewConversations
	ViewGroups
	ViewSessions
	ViewUsers
	ViewProfile
	ViewAdmin
)

func (v View) String() string {
	switch v {
	case ViewLoading:
		return "loading"
	case ViewLogin:
		return "login"
	case ViewTopics:
		return "topics"
	case ViewTopicDetail:
		return "topic-detail"
	case ViewConversations:
		return "conversations"
	case ViewGroups:
		return "groups"
	case ViewSessions:
		return "sessions"
	case ViewUsers:
		return "users"
	case ViewProfile:
		return "profile"
	case ViewAdmin:
		return "admin"
	default:
		return fmt.Sprintf("view(%d)", int(v))
	}
}

// authenticated reports whether v belongs to the signed-in view family
func (v View) authenticated() bool {
	return v != ViewLoading && v != ViewLogin
}

// Collection names a wholesale-replaced list in the Store
type Collection string

const (
	CollectionTopics        Collection = "topics"
	CollectionMessages      Collection = "messages"
	CollectionGroups        Collection = "groups"
	CollectionSessions      Collection = "sessions"
	CollectionConversations Collection = "conversations"
	CollectionUsers         Collection = "users"
)

// Session is the credential pair of a signed-in user
type Session struct {
	Token       string
	CurrentUser *protocol.User
}

// ViewState is the navigation state that drives the router
type ViewState struct {
	Current        View
	TopicID        string
	ConversationID string
}

// NavParams carries the identifiers a navigation target needs
type NavParams struct {
	TopicID        string
	ConversationID string
}

// SessionHook is notified when a session starts or ends. The live-update
// channel and the typing debouncer attach themselves here.
type SessionHook interface {
	SessionStarted(token string)
	SessionEnded()
}

// Snapshot is a copy of the Store's visible fields taken for one render pass
type Snapshot struct {
	Session       Session
	View          ViewState
	Resuming      bool
	Topics        []protocol.Topic
	Messages      []protocol.Message
	Groups        []protocol.Group
	Sessions      []protocol.Meeting
	Conversations []protocol.Conversation
	Users         []protocol.User
	Typing        map[string][]string
	Notice        string
	ChannelStatus string
	AdminStats    *protocol.AdminStats
}

// Authenticated reports whether the snapshot holds a token
func (s Snapshot) Authenticated() bool {
	return s.Session.Token != ""
}

// Store is the application model
type Store struct {
	session  Session
	view     ViewState
	resuming bool

	topics        []protocol.Topic
	messages      []protocol.Message
	groups        []protocol.Group
	sessions      []protocol.Meeting
	conversations []protocol.Conversation
	users         []protocol.User

	typing        map[string]map[string]struct{}
	notice        string
	channelStatus string
	adminStats    *protocol.AdminStats

	subscribers []func()
	hooks       []SessionHook
	// held defers rendering while session hooks run
	held int
}

// New creates an empty, signed-out Store
func New() *Store {
	return &Store{
		view:          ViewState{Current: ViewLogin},
		typing:        make(map[string]map[string]struct{}),
		channelStatus: "disconnected",
	}
}

// Subscribe registers a render callback run after every mutation
func (s *Store) Subscribe(render func()) {
	s.subscribers = append(s.subscribers, render)
}

// Attach registers a session lifecycle hook
func (s *Store) Attach(h SessionHook) {
	s.hooks = append(s.hooks, h)
}

func (s *Store) render() {
	if s.held > 0 {
		return
	}
	for _, fn := range s.subscribers {
		fn()
	}
}

// SetAuth stores credentials, moves to the default signed-in view and starts
// the attached session hooks.
func (s *Store) SetAuth(token string, user protocol.User) {
	s.session = Session{Token: token, CurrentUser: &user}
	s.resuming = false
	s.view = ViewState{Current: ViewTopics}
	s.notice = ""

	s.notifyHooks(func(h SessionHook) { h.SessionStarted(token) })
	s.render()
}

// ClearAuth wipes the session and everything fetched under it, stops the
// attached session hooks and returns to the login view.
func (s *Store) ClearAuth() {
	s.session = Session{}
	s.resuming = false
	s.view = ViewState{Current: ViewLogin}
	s.topics = nil
	s.messages = nil
	s.groups = nil
	s.sessions = nil
	s.conversations = nil
	s.users = nil
	s.typing = make(map[string]map[string]struct{})
	s.notice = ""
	s.adminStats = nil

	s.notifyHooks(SessionHook.SessionEnded)
	s.render()
}

// notifyHooks calls fn for every hook with rendering held. Mutations the
// hooks make (the channel reporting its status) are drawn by the caller's
// single render.
func (s *Store) notifyHooks(fn func(SessionHook)) {
	s.held++
	defer func() { s.held-- }()
	for _, h := range s.hooks {
		fn(h)
	}
}

// BeginResume shows the loading view while a persisted token is checked
func (s *Store) BeginResume() {
	if s.session.Token != "" {
		return
	}
	s.resuming = true
	s.view = ViewState{Current: ViewLoading}
	s.render()
}

// ApplyFetch replaces a collection wholesale. items must be the slice type
// that belongs to the collection; on mismatch the Store is left unchanged.
func (s *Store) ApplyFetch(c Collection, items any) error {
	switch c {
	case CollectionTopics:
		v, ok := items.([]protocol.Topic)
		if !ok {
			return mismatch(c, items)
		}
		s.topics = v
	case CollectionMessages:
		v, ok := items.([]protocol.Message)
		if !ok {
			return mismatch(c, items)
		}
		s.messages = v
	case CollectionGroups:
		v, ok := items.([]protocol.Group)
		if !ok {
			return mismatch(c, items)
		}
		s.groups = v
	case CollectionSessions:
		v, ok := items.([]protocol.Meeting)
		if !ok {
			return mismatch(c, items)
		}
		s.sessions = v
	case CollectionConversations:
		v, ok := items.([]protocol.Conversation)
		if !ok {
			return mismatch(c, items)
		}
		s.conversations = v
	case CollectionUsers:
		v, ok := items.([]protocol.User)
		if !ok {
			return mismatch(c, items)
		}
		s.users = v
	default:
		return fmt.Errorf("unknown collection %q", c)
	}
	s.render()
	return nil
}

func mismatch(c Collection, items any) error {
	return fmt.Errorf("collection %s cannot hold %T", c, items)
}

// ApplyLiveMessage puts a pushed message at the head of the message list
func (s *Store) ApplyLiveMessage(m protocol.Message) {
	messages := make([]protocol.Message, 0, len(s.messages)+1)
	messages = append(messages, m)
	s.messages = append(messages, s.messages...)
	s.render()
}

// PatchMessage replaces a message in place by ID
func (s *Store) PatchMessage(m protocol.Message) {
	for i := range s.messages {
		if s.messages[i].ID == m.ID {
			s.messages[i] = m
			break
		}
	}
	s.render()
}

// MarkMessageDeleted flags a message as deleted in place
func (s *Store) MarkMessageDeleted(id string) {
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].IsDeleted = true
			break
		}
	}
	s.render()
}

// SetTyping adds or removes userID from the typing set of room. Rooms the
// client has never navigated into are unknown and the call is a no-op.
func (s *Store) SetTyping(room, userID string, typing bool) {
	users, known := s.typing[room]
	if !known || userID == "" {
		return
	}
	if typing {
		users[userID] = struct{}{}
	} else {
		delete(users, userID)
	}
	s.render()
}

// Navigate changes the view. Signed-out stores stay on the login view and
// signed-in stores never leave the signed-in family; only SetAuth and
// ClearAuth switch between the two. Navigation clears the notice.
func (s *Store) Navigate(view View, params NavParams) {
	switch {
	case s.session.Token == "":
		if view == ViewLogin && !s.resuming {
			s.view = ViewState{Current: ViewLogin}
		}
	case view.authenticated():
		s.view = ViewState{Current: view, TopicID: params.TopicID, ConversationID: params.ConversationID}
		if room := s.ActiveRoom(); room != "" {
			if _, ok := s.typing[room]; !ok {
				s.typing[room] = make(map[string]struct{})
			}
		}
	}
	s.notice = ""
	s.render()
}

// SetCurrentUser replaces the signed-in user's profile
func (s *Store) SetCurrentUser(user protocol.User) {
	if s.session.Token == "" {
		return
	}
	s.session.CurrentUser = &user
	s.render()
}

// SetNotice shows a user-visible message until the next navigation
func (s *Store) SetNotice(msg string) {
	s.notice = msg
	s.render()
}

// ClearNotice removes the notice
func (s *Store) ClearNotice() {
	s.notice = ""
	s.render()
}

// SetChannelStatus mirrors the live-update channel state for the header
func (s *Store) SetChannelStatus(status string) {
	s.channelStatus = status
	s.render()
}

// SetAdminStats stores the platform totals shown on the admin view
func (s *Store) SetAdminStats(stats protocol.AdminStats) {
	s.adminStats = &stats
	s.render()
}

// Token returns the session token, or "" when signed out
func (s *Store) Token() string {
	return s.session.Token
}

// CurrentUser returns the signed-in user, or nil
func (s *Store) CurrentUser() *protocol.User {
	return s.session.CurrentUser
}

// View returns the navigation state
func (s *Store) View() ViewState {
	return s.view
}

// ActiveRoom returns the live-update room the current view is scoped to, or
// "" when the view has none.
func (s *Store) ActiveRoom() string {
	switch s.view.Current {
	case ViewTopicDetail:
		if s.view.TopicID != "" {
			return protocol.TopicRoom(s.view.TopicID)
		}
	case ViewConversations:
		return s.InboxRoom()
	}
	return ""
}

// InboxRoom returns the signed-in user's direct-message room, or "" when
// signed out. The live-update channel stays joined to it for the whole
// session so new_dm reaches the client on every view.
func (s *Store) InboxRoom() string {
	if s.session.Token == "" || s.session.CurrentUser == nil || s.session.CurrentUser.ID == "" {
		return ""
	}
	return protocol.DMRoom(s.session.CurrentUser.ID)
}

// Typing returns the sorted IDs of users typing in room
func (s *Store) Typing(room string) []string {
	return sortedKeys(s.typing[room])
}

// MessageCount returns the number of messages held
func (s *Store) MessageCount() int {
	return len(s.messages)
}

// Snapshot copies the visible fields for rendering
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Session:       s.session,
		View:          s.view,
		Resuming:      s.resuming,
		Topics:        slices.Clone(s.topics),
		Messages:      slices.Clone(s.messages),
		Groups:        slices.Clone(s.groups),
		Sessions:      slices.Clone(s.sessions),
		Conversations: slices.Clone(s.conversations),
		Users:         slices.Clone(s.users),
		Typing:        make(map[string][]string, len(s.typing)),
		Notice:        s.notice,
		ChannelStatus: s.channelStatus,
	}
	if s.session.CurrentUser != nil {
		u := *s.session.CurrentUser
		snap.Session.CurrentUser = &u
	}
	if s.adminStats != nil {
		stats := *s.adminStats
		snap.AdminStats = &stats
	}
	for room, users := range s.typing {
		if len(users) > 0 {
			snap.Typing[room] = sortedKeys(users)
		}
	}
	return snap
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
