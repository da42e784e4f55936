package v1

import (
	"encoding/json"
	"testing"
)

func TestFrame_AuthenticateToken(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"ok", `{"type":"authenticate","data":"tok"}`, "tok", false},
		{"trimmed", `{"type":"authenticate","data":"  tok  "}`, "tok", false},
		{"empty", `{"type":"authenticate","data":""}`, "", true},
		{"missing data", `{"type":"authenticate"}`, "", true},
		{"object data", `{"type":"authenticate","data":{"token":"tok"}}`, "", true},
		{"wrong type", `{"type":"reauthenticate","data":"tok"}`, "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var f Frame
			if err := json.Unmarshal([]byte(tc.raw), &f); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			got, err := f.AuthenticateToken()
			if (err != nil) != tc.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("token=%q want %q", got, tc.want)
			}
		})
	}
}

func TestFrame_Validate(t *testing.T) {
	if err := (Frame{}).Validate(); err == nil {
		t.Fatalf("expected error for empty type")
	}
	if err := (Frame{Type: TypeAuthenticate}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFrame_ReauthenticateOmitsData(t *testing.T) {
	b, err := json.Marshal(Frame{Type: TypeReauthenticate})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"type":"reauthenticate"}` {
		t.Fatalf("got %s", b)
	}
}

func TestNullable_RoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   UserUpdate
		want string
	}{
		{"unchanged", UserUpdate{ID: "1"}, `{"id":"1"}`},
		{"cleared", UserUpdate{ID: "1", DisplayName: Clear[string]()}, `{"id":"1","display_name":null}`},
		{"set", UserUpdate{ID: "1", DisplayName: SetTo("Al")}, `{"id":"1","display_name":"Al"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := json.Marshal(tc.in)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(b) != tc.want {
				t.Fatalf("got %s want %s", b, tc.want)
			}

			var back UserUpdate
			if err := json.Unmarshal(b, &back); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if back.DisplayName.Set != tc.in.DisplayName.Set {
				t.Fatalf("Set=%v want %v", back.DisplayName.Set, tc.in.DisplayName.Set)
			}
			if (back.DisplayName.Value == nil) != (tc.in.DisplayName.Value == nil) {
				t.Fatalf("Value presence mismatch")
			}
		})
	}
}
