package tenants

import "testing"

func TestRoomKeyRoundTrip(t *testing.T) {
	key := RoomKey("12345")
	if key != "user:12345" {
		t.Fatalf("RoomKey = %q", key)
	}
	if got := TenantFromRoom(key); got != "12345" {
		t.Fatalf("TenantFromRoom = %q", got)
	}
	if got := TenantFromRoom("system:stuff"); got != "" {
		t.Fatalf("expected empty tenant for foreign room, got %q", got)
	}
}

func TestValid(t *testing.T) {
	for _, ok := range []string{"12345", "abcDEF", "user-1_x"} {
		if !Valid(ok) {
			t.Errorf("Valid(%q) = false, want true", ok)
		}
	}
	for _, bad := range []string{"", "has space", "a:b", "a/b", string(make([]byte, 65))} {
		if Valid(bad) {
			t.Errorf("Valid(%q) = true, want false", bad)
		}
	}
}
