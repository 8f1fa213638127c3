package ui

import (
	"github.com/aeolun/kindred/pkg/protocol"
	"github.com/aeolun/kindred/pkg/store"
)

// Page is the screen the router selected for a snapshot
type Page string

const (
	PageLoading       Page = "loading"
	PageLogin         Page = "login"
	PageTopics        Page = "topics"
	PageTopicDetail   Page = "topic-detail"
	PageConversations Page = "conversations"
	PageGroups        Page = "groups"
	PageSessions      Page = "sessions"
	PageUsers         Page = "users"
	PageProfile       Page = "profile"
	PageAdmin         Page = "admin"
)

// Route maps a snapshot to the page that renders it. It has no side effects.
//
// A resuming or signed-out snapshot never reaches a signed-in page, and the
// admin page is only served to super admins; everyone else lands on topics.
func Route(snap store.Snapshot) Page {
	if snap.Resuming || snap.View.Current == store.ViewLoading {
		return PageLoading
	}
	if !snap.Authenticated() {
		return PageLogin
	}

	switch snap.View.Current {
	case store.ViewTopicDetail:
		if snap.View.TopicID == "" {
			return PageTopics
		}
		return PageTopicDetail
	case store.ViewConversations:
		return PageConversations
	case store.ViewGroups:
		return PageGroups
	case store.ViewSessions:
		return PageSessions
	case store.ViewUsers:
		return PageUsers
	case store.ViewProfile:
		return PageProfile
	case store.ViewAdmin:
		if isSuperAdmin(snap) {
			return PageAdmin
		}
		return PageTopics
	default:
		return PageTopics
	}
}

func isSuperAdmin(snap store.Snapshot) bool {
	user := snap.Session.CurrentUser
	return user != nil && user.Role == protocol.RoleSuperAdmin
}
