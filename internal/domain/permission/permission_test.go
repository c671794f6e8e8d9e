package permission

import (
	"encoding/json"
	"errors"
	"testing"

	parley_errors "parley-chat/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Permission
		wantErr bool
	}{
		{name: "known", input: "sendMessage", want: SendMessage},
		{name: "trimmed", input: " changeRole ", want: ChangeRole},
		{name: "wrong case", input: "SendMessage", wantErr: true},
		{name: "unknown", input: "ban", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if !errors.Is(err, parley_errors.ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSetOperations(t *testing.T) {
	s := NewSet(AddMember, SendMessage)
	if !s.Has(AddMember) || !s.Has(SendMessage) {
		t.Fatalf("expected both permissions in %v", s.Strings())
	}
	if s.Has(Delete) {
		t.Errorf("unexpected delete permission")
	}
	if s.Len() != 2 {
		t.Errorf("len = %d, want 2", s.Len())
	}

	s = s.With(AddMedia).Without(AddMember)
	want := []Permission{SendMessage, AddMedia}
	got := s.Slice()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slice[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if All().Len() != len(Catalog()) {
		t.Errorf("All() should contain the whole catalog")
	}
	if NewSet(Permission("bogus")) != 0 {
		t.Errorf("unknown permission must not be added")
	}
}

func TestParseSetRejectsUnknown(t *testing.T) {
	if _, err := ParseSet([]string{"edit", "fly"}); !errors.Is(err, parley_errors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	s, err := ParseSet([]string{"edit", "edit", "delete"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != NewSet(Edit, Delete) {
		t.Errorf("duplicates should collapse, got %v", s.Strings())
	}
}

func TestSetJSON(t *testing.T) {
	data, err := json.Marshal(NewSet(ChangeRole, Delete))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `["delete","changeRole"]` {
		t.Errorf("got %s", data)
	}

	var s Set
	if err := json.Unmarshal([]byte(`["addMedia"]`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s != NewSet(AddMedia) {
		t.Errorf("got %v", s.Strings())
	}
	if err := json.Unmarshal([]byte(`["nope"]`), &s); err == nil {
		t.Errorf("expected error for unknown permission")
	}
}
