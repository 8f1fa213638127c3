package ui

import (
	"testing"

	"github.com/aeolun/kindred/pkg/protocol"
	"github.com/aeolun/kindred/pkg/store"
)

func signedIn(role protocol.Role, view store.ViewState) store.Snapshot {
	user := protocol.User{ID: "u1", Username: "alice", Role: role}
	return store.Snapshot{
		Session: store.Session{Token: "tok", CurrentUser: &user},
		View:    view,
	}
}

func TestRoute(t *testing.T) {
	tests := []struct {
		name string
		snap store.Snapshot
		want Page
	}{
		{
			name: "signed out",
			snap: store.Snapshot{View: store.ViewState{Current: store.ViewLogin}},
			want: PageLogin,
		},
		{
			name: "signed out never reaches signed-in pages",
			snap: store.Snapshot{View: store.ViewState{Current: store.ViewTopics}},
			want: PageLogin,
		},
		{
			name: "resuming",
			snap: store.Snapshot{Resuming: true, View: store.ViewState{Current: store.ViewLoading}},
			want: PageLoading,
		},
		{
			name: "topics",
			snap: signedIn(protocol.RoleBasic, store.ViewState{Current: store.ViewTopics}),
			want: PageTopics,
		},
		{
			name: "topic detail",
			snap: signedIn(protocol.RoleBasic, store.ViewState{Current: store.ViewTopicDetail, TopicID: "7"}),
			want: PageTopicDetail,
		},
		{
			name: "topic detail without a topic",
			snap: signedIn(protocol.RoleBasic, store.ViewState{Current: store.ViewTopicDetail}),
			want: PageTopics,
		},
		{
			name: "conversations",
			snap: signedIn(protocol.RolePremium, store.ViewState{Current: store.ViewConversations}),
			want: PageConversations,
		},
		{
			name: "groups",
			snap: signedIn(protocol.RoleBasic, store.ViewState{Current: store.ViewGroups}),
			want: PageGroups,
		},
		{
			name: "sessions",
			snap: signedIn(protocol.RoleBasic, store.ViewState{Current: store.ViewSessions}),
			want: PageSessions,
		},
		{
			name: "users",
			snap: signedIn(protocol.RoleBasic, store.ViewState{Current: store.ViewUsers}),
			want: PageUsers,
		},
		{
			name: "profile",
			snap: signedIn(protocol.RoleBasic, store.ViewState{Current: store.ViewProfile}),
			want: PageProfile,
		},
		{
			name: "admin for super admin",
			snap: signedIn(protocol.RoleSuperAdmin, store.ViewState{Current: store.ViewAdmin}),
			want: PageAdmin,
		},
		{
			name: "admin for premium falls back",
			snap: signedIn(protocol.RolePremium, store.ViewState{Current: store.ViewAdmin}),
			want: PageTopics,
		},
		{
			name: "admin for basic falls back",
			snap: signedIn(protocol.RoleBasic, store.ViewState{Current: store.ViewAdmin}),
			want: PageTopics,
		},
		{
			name: "signed in on login view",
			snap: signedIn(protocol.RoleBasic, store.ViewState{Current: store.ViewLogin}),
			want: PageTopics,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Route(tt.snap); got != tt.want {
				t.Errorf("Route() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRouteIsPure(t *testing.T) {
	snap := signedIn(protocol.RoleBasic, store.ViewState{Current: store.ViewAdmin})
	first := Route(snap)
	second := Route(snap)
	if first != second {
		t.Errorf("Route() changed between calls: %q then %q", first, second)
	}
	if snap.View.Current != store.ViewAdmin {
		t.Errorf("Route() modified the snapshot view: %v", snap.View.Current)
	}
}
