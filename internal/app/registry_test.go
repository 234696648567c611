package app

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dkeye/Inkroom/internal/core"
	"github.com/dkeye/Inkroom/internal/domain"
)

func TestRegistryRoomAssociation(t *testing.T) {
	r := NewRegistry()
	r.BindSignal("c1", newSession("c1"), nil)

	if _, _, ok := r.RoomOf("c1"); ok {
		t.Fatal("fresh session should not be in a room")
	}
	if !r.UpdateRoom("c1", "abc") {
		t.Fatal("UpdateRoom on bound session failed")
	}
	if id, _, ok := r.RoomOf("c1"); !ok || id != "abc" {
		t.Fatalf("RoomOf = %q %v, want abc", id, ok)
	}
	if r.ClearRoom("c1", "other") {
		t.Fatal("ClearRoom for a different room must not clear")
	}
	if !r.ClearRoom("c1", "abc") {
		t.Fatal("ClearRoom for current room failed")
	}
	if _, _, ok := r.RoomOf("c1"); ok {
		t.Fatal("room association should be gone")
	}
	if r.UpdateRoom("missing", "abc") {
		t.Fatal("UpdateRoom on unknown session should fail")
	}
}

func TestRegistryUnbindOnce(t *testing.T) {
	r := NewRegistry()
	r.BindSignal("c1", newSession("c1"), nil)
	r.UpdateRoom("c1", "abc")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if id, ok := r.Unbind("c1"); ok {
				if id != "abc" {
					t.Errorf("Unbind room = %q", id)
				}
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Fatalf("Unbind succeeded %d times, want 1", got)
	}
	if r.Len() != 0 {
		t.Fatalf("Len = %d after unbind", r.Len())
	}
}

func TestRegistryMembersOfRoom(t *testing.T) {
	r := NewRegistry()
	for _, sid := range []core.SessionID{"a", "b", "c"} {
		r.BindSignal(sid, newSession(string(sid)), nil)
	}
	r.UpdateRoom("a", "one")
	r.UpdateRoom("b", "one")
	r.UpdateRoom("c", "two")

	tests := []struct {
		room domain.RoomID
		want int
	}{
		{"one", 2},
		{"two", 1},
		{"none", 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.room), func(t *testing.T) {
			if got := len(r.MembersOfRoom(tt.room)); got != tt.want {
				t.Errorf("MembersOfRoom(%q) = %d, want %d", tt.room, got, tt.want)
			}
		})
	}
}

func TestRegistryUsername(t *testing.T) {
	r := NewRegistry()
	u := r.GetOrCreateUser("c1")
	if u.Username != "guest" {
		t.Fatalf("default username = %q", u.Username)
	}
	if r.GetOrCreateUser("c1") != u {
		t.Fatal("GetOrCreateUser should return the same user")
	}
	if err := r.UpdateUsername("c1", "ada"); err != nil {
		t.Fatalf("UpdateUsername: %v", err)
	}
	if u.Username != "ada" {
		t.Fatalf("username = %q, want ada", u.Username)
	}
	if err := r.UpdateUsername("c1", ""); err != domain.ErrUsernameEmpty {
		t.Fatalf("empty username err = %v", err)
	}
}

func TestRegistryCancel(t *testing.T) {
	r := NewRegistry()
	var called bool
	r.BindSignal("c1", newSession("c1"), func() { called = true })
	if !r.Cancel("c1") || !called {
		t.Fatal("Cancel did not invoke the cancel func")
	}
	if r.Cancel("missing") {
		t.Fatal("Cancel on unknown session should report false")
	}
}
