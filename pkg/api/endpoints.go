package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/aeolun/kindred/pkg/protocol"
)

// Login authenticates with username and password
func (c *Client) Login(ctx context.Context, username, password string) (*protocol.AuthResponse, error) {
	body := map[string]string{"username": username, "password": password}
	var resp protocol.AuthResponse
	if err := c.Do(ctx, http.MethodPost, "/auth/login", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account and returns its session
func (c *Client) Register(ctx context.Context, username, password, displayName string) (*protocol.AuthResponse, error) {
	if displayName == "" {
		displayName = username
	}
	body := map[string]string{"username": username, "password": password, "display_name": displayName}
	var resp protocol.AuthResponse
	if err := c.Do(ctx, http.MethodPost, "/auth/register", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me returns the user the current token belongs to
func (c *Client) Me(ctx context.Context) (*protocol.User, error) {
	var user protocol.User
	if err := c.Do(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Topics lists topics
func (c *Client) Topics(ctx context.Context) ([]protocol.Topic, error) {
	var topics []protocol.Topic
	err := c.Do(ctx, http.MethodGet, "/topics", nil, &topics)
	return topics, err
}

// CreateTopic creates a topic
func (c *Client) CreateTopic(ctx context.Context, title, description string, isPublic bool) (*protocol.Topic, error) {
	body := map[string]interface{}{"title": title, "description": description, "is_public": isPublic}
	var topic protocol.Topic
	if err := c.Do(ctx, http.MethodPost, "/topics", body, &topic); err != nil {
		return nil, err
	}
	return &topic, nil
}

// VoteTopic votes on a topic; voteType is "up" or "down"
func (c *Client) VoteTopic(ctx context.Context, topicID, voteType string) error {
	return c.Do(ctx, http.MethodPost, "/topics/"+url.PathEscape(topicID)+"/vote?type="+url.QueryEscape(voteType), nil, nil)
}

// MessageQuery selects the messages of a topic or a group
type MessageQuery struct {
	TopicID string
	GroupID string
}

func (q MessageQuery) encode() string {
	switch {
	case q.TopicID != "":
		return "?topic_id=" + url.QueryEscape(q.TopicID)
	case q.GroupID != "":
		return "?group_id=" + url.QueryEscape(q.GroupID)
	}
	return ""
}

// Messages lists messages in server order
func (c *Client) Messages(ctx context.Context, q MessageQuery) ([]protocol.Message, error) {
	var messages []protocol.Message
	err := c.Do(ctx, http.MethodGet, "/messages"+q.encode(), nil, &messages)
	return messages, err
}

// NewMessage is the body of a message post
type NewMessage struct {
	Content         string  `json:"content"`
	TopicID         *string `json:"topic_id"`
	GroupID         *string `json:"group_id"`
	QuotedMessageID *string `json:"quoted_message_id"`
}

// SendMessage posts a message to a topic or group
func (c *Client) SendMessage(ctx context.Context, msg NewMessage) (*protocol.Message, error) {
	var created protocol.Message
	if err := c.Do(ctx, http.MethodPost, "/messages", msg, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// EditMessage replaces a message's content
func (c *Client) EditMessage(ctx context.Context, messageID, content string) (*protocol.Message, error) {
	var edited protocol.Message
	body := map[string]string{"content": content}
	if err := c.Do(ctx, http.MethodPatch, "/messages/"+url.PathEscape(messageID), body, &edited); err != nil {
		return nil, err
	}
	return &edited, nil
}

// DeleteMessage deletes a message
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.Do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, nil)
}

// AddReaction reacts to a message
func (c *Client) AddReaction(ctx context.Context, messageID, emoji string) error {
	body := map[string]string{"emoji": emoji}
	return c.Do(ctx, http.MethodPost, "/messages/"+url.PathEscape(messageID)+"/reactions", body, nil)
}

// Conversations lists direct-message conversations, most recent first
func (c *Client) Conversations(ctx context.Context) ([]protocol.Conversation, error) {
	var conversations []protocol.Conversation
	err := c.Do(ctx, http.MethodGet, "/conversations", nil, &conversations)
	return conversations, err
}

// SendDirectMessage sends a direct message, creating the conversation if needed
func (c *Client) SendDirectMessage(ctx context.Context, recipientID, content string) (*protocol.DirectMessage, error) {
	body := map[string]string{"recipient_id": recipientID, "content": content}
	var dm protocol.DirectMessage
	if err := c.Do(ctx, http.MethodPost, "/conversations/send", body, &dm); err != nil {
		return nil, err
	}
	return &dm, nil
}

// Groups lists groups
func (c *Client) Groups(ctx context.Context) ([]protocol.Group, error) {
	var groups []protocol.Group
	err := c.Do(ctx, http.MethodGet, "/groups", nil, &groups)
	return groups, err
}

// JoinGroup joins a group
func (c *Client) JoinGroup(ctx context.Context, groupID string) error {
	return c.Do(ctx, http.MethodPost, "/groups/"+url.PathEscape(groupID)+"/join", nil, nil)
}

// LeaveGroup leaves a group
func (c *Client) LeaveGroup(ctx context.Context, groupID string) error {
	return c.Do(ctx, http.MethodPost, "/groups/"+url.PathEscape(groupID)+"/leave", nil, nil)
}

// Sessions lists scheduled meetings
func (c *Client) Sessions(ctx context.Context) ([]protocol.Meeting, error) {
	var meetings []protocol.Meeting
	err := c.Do(ctx, http.MethodGet, "/sessions", nil, &meetings)
	return meetings, err
}

// SearchUsers finds users by name; an empty query lists everyone visible
func (c *Client) SearchUsers(ctx context.Context, query string) ([]protocol.User, error) {
	var users []protocol.User
	err := c.Do(ctx, http.MethodGet, "/users/search?q="+url.QueryEscape(query), nil, &users)
	return users, err
}

// ProfileUpdate is the body of a profile update
type ProfileUpdate struct {
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
	Status      string `json:"status"`
}

// UpdateProfile updates the current user's profile
func (c *Client) UpdateProfile(ctx context.Context, p ProfileUpdate) error {
	return c.Do(ctx, http.MethodPatch, "/profile", p, nil)
}

// BlockUser blocks a user
func (c *Client) BlockUser(ctx context.Context, userID string) error {
	return c.Do(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/block", nil, nil)
}

// TypingStart signals that the current user started typing in room
func (c *Client) TypingStart(ctx context.Context, room string) error {
	return c.Do(ctx, http.MethodPost, "/messages/typing/start?room="+url.QueryEscape(room), nil, nil)
}

// TypingStop signals that the current user stopped typing in room
func (c *Client) TypingStop(ctx context.Context, room string) error {
	return c.Do(ctx, http.MethodPost, "/messages/typing/stop?room="+url.QueryEscape(room), nil, nil)
}

// SetOnline announces the current user's online status
func (c *Client) SetOnline(ctx context.Context, online bool) error {
	value := "false"
	if online {
		value = "true"
	}
	return c.Do(ctx, http.MethodPost, "/status/online?online="+value, nil, nil)
}

// AdminStats returns platform totals (super_admin only)
func (c *Client) AdminStats(ctx context.Context) (*protocol.AdminStats, error) {
	var stats protocol.AdminStats
	if err := c.Do(ctx, http.MethodGet, "/admin/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// AdminUsers lists every account (super_admin only)
func (c *Client) AdminUsers(ctx context.Context) ([]protocol.User, error) {
	var users []protocol.User
	err := c.Do(ctx, http.MethodGet, "/admin/users", nil, &users)
	return users, err
}

// AdminSetUserStatus activates or deactivates an account
func (c *Client) AdminSetUserStatus(ctx context.Context, userID string, active bool) error {
	action := "deactivate"
	if active {
		action = "activate"
	}
	return c.Do(ctx, http.MethodPatch, "/admin/users/"+url.PathEscape(userID)+"/status?action="+action, nil, nil)
}

// AdminSetUserRole changes an account's role
func (c *Client) AdminSetUserRole(ctx context.Context, userID string, role protocol.Role) error {
	body := map[string]string{"role": string(role)}
	return c.Do(ctx, http.MethodPatch, "/admin/users/"+url.PathEscape(userID)+"/role", body, nil)
}
