package protocol

import "time"

// Role is a user's account tier
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RolePremium    Role = "premium"
	RoleBasic      Role = "basic"
)

// User is an account as returned by /auth/me, user search and profile calls
type User struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	DisplayName    string `json:"display_name"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	Bio            string `json:"bio,omitempty"`
	Status         string `json:"status,omitempty"`
	Role           Role   `json:"role"`
	IsOnline       bool   `json:"is_online"`
	IsActive       bool   `json:"is_active"`
	IsPsychologist bool   `json:"is_psychologist,omitempty"`
}

// Name returns the display name, falling back to the username
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// AuthResponse is returned by login and register
type AuthResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Topic is a discussion topic
type Topic struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	IsPublic      bool      `json:"is_public"`
	CreatedBy     string    `json:"created_by"`
	VotesCount    int       `json:"votes_count"`
	MessagesCount int       `json:"messages_count"`
	UserVote      string    `json:"user_vote,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Reaction is an emoji reaction on a message
type Reaction struct {
	ID        string `json:"id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Emoji     string `json:"emoji"`
	Count     int    `json:"count,omitempty"`
}

// Message is a topic or group message
type Message struct {
	ID              string     `json:"id"`
	Content         string     `json:"content"`
	TopicID         *string    `json:"topic_id,omitempty"`
	GroupID         *string    `json:"group_id,omitempty"`
	UserID          string     `json:"user_id"`
	User            *User      `json:"user,omitempty"`
	ParentID        *string    `json:"parent_id,omitempty"`
	QuotedMessageID *string    `json:"quoted_message_id,omitempty"`
	IsEdited        bool       `json:"is_edited"`
	IsDeleted       bool       `json:"is_deleted,omitempty"`
	EditedAt        *time.Time `json:"edited_at,omitempty"`
	Reactions       []Reaction `json:"reactions,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// AuthorName returns the best available name for the message author
func (m Message) AuthorName() string {
	if m.User != nil {
		return m.User.Name()
	}
	return m.UserID
}

// Group is a support group
type Group struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	IsPrivate    bool   `json:"is_private"`
	MembersCount int    `json:"members_count"`
	IsMember     bool   `json:"is_member,omitempty"`
	Role         string `json:"role,omitempty"`
}

// Meeting is a scheduled webinar or group session
type Meeting struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	SessionType     string    `json:"session_type"`
	Psychologist    *User     `json:"psychologist,omitempty"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
}

// Conversation is one direct-message thread summary
type Conversation struct {
	ID            string `json:"id"`
	LastMessageAt string `json:"last_message_at"`
	OtherUser     User   `json:"other_user"`
	LastMessage   string `json:"last_message"`
	UnreadCount   int    `json:"unread_count"`
}

// DirectMessage is the payload of a new_dm envelope
type DirectMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	IsRead         bool   `json:"is_read"`
	CreatedAt      string `json:"created_at"`
}

// AdminStats holds platform totals shown to super admins
type AdminStats struct {
	TotalUsers        int `json:"total_users"`
	TotalTopics       int `json:"total_topics"`
	TotalGroups       int `json:"total_groups"`
	TotalMessages     int `json:"total_messages"`
	TotalSessions     int `json:"total_sessions"`
	TotalPremiumUsers int `json:"total_premium_users"`
	TotalBasicUsers   int `json:"total_basic_users"`
	TotalSuperAdmins  int `json:"total_super_admins"`
}
