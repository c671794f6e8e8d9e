package permission

import (
	"encoding/json"
	"fmt"
	"strings"

	parley_errors "parley-chat/pkg/errors"
)

// Permission is a capability that a role may grant inside a group or channel.
type Permission string

const (
	Delete           Permission = "delete"
	Edit             Permission = "edit"
	AddMember        Permission = "addMember"
	RemoveMember     Permission = "removeMember"
	SendMessage      Permission = "sendMessage"
	AddMedia         Permission = "addMedia"
	ChangeRole       Permission = "changeRole"
	ChangeDiscussion Permission = "changeDiscussion"
)

// catalog order is also the bit order of Set.
var catalog = []Permission{
	Delete,
	Edit,
	AddMember,
	RemoveMember,
	SendMessage,
	AddMedia,
	ChangeRole,
	ChangeDiscussion,
}

// Catalog returns the fixed list of permissions.
func Catalog() []Permission {
	out := make([]Permission, len(catalog))
	copy(out, catalog)
	return out
}

func (p Permission) index() int {
	for i, c := range catalog {
		if c == p {
			return i
		}
	}
	return -1
}

func (p Permission) Valid() bool {
	return p.index() >= 0
}

func (p Permission) String() string {
	return string(p)
}

// Parse resolves a permission by name. Names are case sensitive.
func Parse(name string) (Permission, error) {
	p := Permission(strings.TrimSpace(name))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown permission %q", parley_errors.ErrInvalidInput, name)
	}
	return p, nil
}

// Set is a set of permissions backed by a bitmask.
type Set uint16

func NewSet(perms ...Permission) Set {
	var s Set
	for _, p := range perms {
		s = s.With(p)
	}
	return s
}

// ParseSet parses every name, failing on the first unknown one.
func ParseSet(names []string) (Set, error) {
	var s Set
	for _, name := range names {
		p, err := Parse(name)
		if err != nil {
			return 0, err
		}
		s = s.With(p)
	}
	return s, nil
}

// All is the set holding every permission of the catalog.
func All() Set {
	return NewSet(catalog...)
}

func (s Set) With(p Permission) Set {
	i := p.index()
	if i < 0 {
		return s
	}
	return s | 1<<uint(i)
}

func (s Set) Without(p Permission) Set {
	i := p.index()
	if i < 0 {
		return s
	}
	return s &^ (1 << uint(i))
}

func (s Set) Has(p Permission) bool {
	i := p.index()
	return i >= 0 && s&(1<<uint(i)) != 0
}

func (s Set) Len() int {
	n := 0
	for i := range catalog {
		if s&(1<<uint(i)) != 0 {
			n++
		}
	}
	return n
}

// Slice lists the members in catalog order.
func (s Set) Slice() []Permission {
	out := make([]Permission, 0, s.Len())
	for i, p := range catalog {
		if s&(1<<uint(i)) != 0 {
			out = append(out, p)
		}
	}
	return out
}

func (s Set) Strings() []string {
	perms := s.Slice()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	parsed, err := ParseSet(names)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
