package validate

import "testing"

type createPayload struct {
	Username string `json:"username" validate:"required,min=2,max=20"`
	GameType int    `json:"game_type" validate:"oneof=0 1"`
	RoomID   string `json:"room_id,omitempty" validate:"omitempty,len=4"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	details, err := Struct(createPayload{Username: "x", GameType: 7, RoomID: "TOOLONG"})
	if err == nil {
		t.Fatal("expected validation failure")
	}
	for _, field := range []string{"username", "game_type", "room_id"} {
		if _, ok := details[field]; !ok {
			t.Fatalf("missing detail for %q: %v", field, details)
		}
	}
}

func TestStructAcceptsValidPayload(t *testing.T) {
	details, err := Struct(createPayload{Username: "alice", GameType: 0, RoomID: "AB12"})
	if err != nil {
		t.Fatalf("unexpected failure: %v (%v)", err, details)
	}
	if details != nil {
		t.Fatalf("details = %v, want nil", details)
	}
}

func TestStructZeroEnumValueAllowed(t *testing.T) {
	// game_type 0 is a real variant and must pass the enum check.
	if _, err := Struct(createPayload{Username: "alice", GameType: 0}); err != nil {
		t.Fatalf("game_type 0 rejected: %v", err)
	}
}
