package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/membership"
	"parley-chat/internal/domain/message"
	"parley-chat/internal/domain/permission"
	"parley-chat/internal/domain/role"
	"parley-chat/internal/domain/user"
	parley_errors "parley-chat/pkg/errors"
)

func violation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{parley_errors.ErrInvariantViolation}, args...)...)
}

func sameConversation(kind conversation.Kind, id int64, ref conversation.Ref) bool {
	return kind == ref.Kind && id == ref.ID
}

// users

type userRepo struct{ h *handle }

func (r *userRepo) GetByID(ctx context.Context, id int64) (user.User, error) {
	var out user.User
	err := r.h.do(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return parley_errors.ErrNotFound
		}
		out = u
		return nil
	})
	return out, err
}

func (r *userRepo) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.h.do(func(st *state) error {
		_, ok = st.users[id]
		return nil
	})
	return ok, err
}

func (r *userRepo) UpdateLastOnline(ctx context.Context, id int64, at time.Time) error {
	return r.h.do(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return parley_errors.ErrNotFound
		}
		u.LastOnline = &at
		st.users[id] = u
		return nil
	})
}

// conversations

type conversationRepo struct{ h *handle }

func (r *conversationRepo) Create(ctx context.Context, kind conversation.Kind, details conversation.Details) (conversation.Conversation, error) {
	var out conversation.Conversation
	err := r.h.do(func(st *state) error {
		now := time.Now()
		switch kind {
		case conversation.KindGroup:
			g := conversation.Group{ID: st.next("groups"), Details: details, CreatedAt: now, UpdatedAt: now}
			st.groups[g.ID] = g
			out = conversation.FromGroup(g)
		case conversation.KindChannel:
			c := conversation.Channel{ID: st.next("channels"), Details: details, CreatedAt: now, UpdatedAt: now}
			st.channels[c.ID] = c
			out = conversation.FromChannel(c)
		default:
			return fmt.Errorf("%w: cannot create %q as a group or channel", parley_errors.ErrInvalidInput, kind)
		}
		return nil
	})
	return out, err
}

func (st *state) conversation(ref conversation.Ref) (conversation.Conversation, error) {
	switch ref.Kind {
	case conversation.KindGroup:
		g, ok := st.groups[ref.ID]
		if !ok {
			return conversation.Conversation{}, parley_errors.ErrNotFound
		}
		return conversation.FromGroup(g), nil
	case conversation.KindChannel:
		c, ok := st.channels[ref.ID]
		if !ok {
			return conversation.Conversation{}, parley_errors.ErrNotFound
		}
		return conversation.FromChannel(c), nil
	}
	return conversation.Conversation{}, fmt.Errorf("%w: %q is not a group or channel", parley_errors.ErrInvalidInput, ref.Kind)
}

func (st *state) exists(ref conversation.Ref) bool {
	switch ref.Kind {
	case conversation.KindGroup:
		_, ok := st.groups[ref.ID]
		return ok
	case conversation.KindChannel:
		_, ok := st.channels[ref.ID]
		return ok
	case conversation.KindChat:
		_, ok := st.chats[ref.ID]
		return ok
	}
	return false
}

func (r *conversationRepo) Get(ctx context.Context, ref conversation.Ref) (conversation.Conversation, error) {
	var out conversation.Conversation
	err := r.h.do(func(st *state) (err error) {
		out, err = st.conversation(ref)
		return err
	})
	return out, err
}

func (r *conversationRepo) Lock(ctx context.Context, ref conversation.Ref) error {
	return r.h.do(func(st *state) error {
		if !st.exists(ref) {
			return parley_errors.ErrNotFound
		}
		return nil
	})
}

func (r *conversationRepo) UpdateDetails(ctx context.Context, ref conversation.Ref, details conversation.Details) (conversation.Conversation, error) {
	var out conversation.Conversation
	err := r.h.do(func(st *state) error {
		switch ref.Kind {
		case conversation.KindGroup:
			g, ok := st.groups[ref.ID]
			if !ok {
				return parley_errors.ErrNotFound
			}
			g.Details, g.UpdatedAt = details, time.Now()
			st.groups[g.ID] = g
			out = conversation.FromGroup(g)
		case conversation.KindChannel:
			c, ok := st.channels[ref.ID]
			if !ok {
				return parley_errors.ErrNotFound
			}
			c.Details, c.UpdatedAt = details, time.Now()
			st.channels[c.ID] = c
			out = conversation.FromChannel(c)
		default:
			return fmt.Errorf("%w: %q has no details", parley_errors.ErrInvalidInput, ref.Kind)
		}
		return nil
	})
	return out, err
}

// deleteMessagesOf removes the messages of ref together with their attachments and receipts.
func (st *state) deleteMessagesOf(ref conversation.Ref) {
	for id, m := range st.messages {
		if m.Ref() == ref {
			st.deleteMessage(id)
		}
	}
}

func (st *state) deleteMessage(id int64) {
	delete(st.messages, id)
	for aid, a := range st.attachments {
		if a.MessageID == id {
			delete(st.attachments, aid)
		}
	}
	for k := range st.memberReceipts {
		if k.messageID == id {
			delete(st.memberReceipts, k)
		}
	}
	for k := range st.userReceipts {
		if k.messageID == id {
			delete(st.userReceipts, k)
		}
	}
}

func (r *conversationRepo) Delete(ctx context.Context, ref conversation.Ref) error {
	return r.h.do(func(st *state) error {
		if !st.exists(ref) {
			return parley_errors.ErrNotFound
		}
		switch ref.Kind {
		case conversation.KindGroup:
			delete(st.groups, ref.ID)
			for id, c := range st.channels {
				if c.GroupID != nil && *c.GroupID == ref.ID {
					c.GroupID = nil
					st.channels[id] = c
				}
			}
		case conversation.KindChannel:
			delete(st.channels, ref.ID)
		case conversation.KindChat:
			delete(st.chats, ref.ID)
		}
		st.deleteMessagesOf(ref)
		return nil
	})
}

func (r *conversationRepo) AdjustMemberCount(ctx context.Context, ref conversation.Ref, delta int) error {
	return r.h.do(func(st *state) error {
		switch ref.Kind {
		case conversation.KindGroup:
			g, ok := st.groups[ref.ID]
			if !ok {
				return parley_errors.ErrNotFound
			}
			g.QtyUsers += delta
			st.groups[g.ID] = g
		case conversation.KindChannel:
			c, ok := st.channels[ref.ID]
			if !ok {
				return parley_errors.ErrNotFound
			}
			c.QtyUsers += delta
			st.channels[c.ID] = c
		default:
			return fmt.Errorf("%w: %q has no member count", parley_errors.ErrInvalidInput, ref.Kind)
		}
		return nil
	})
}

func (r *conversationRepo) Search(ctx context.Context, kind conversation.Kind, prefix string, limit int) ([]conversation.Conversation, error) {
	out := []conversation.Conversation{}
	err := r.h.do(func(st *state) error {
		prefix = strings.ToLower(prefix)
		match := func(c conversation.Conversation) {
			if !c.IsPrivate && strings.HasPrefix(strings.ToLower(c.Name), prefix) {
				out = append(out, c)
			}
		}
		switch kind {
		case conversation.KindGroup:
			for _, g := range st.groups {
				match(conversation.FromGroup(g))
			}
		case conversation.KindChannel:
			for _, c := range st.channels {
				match(conversation.FromChannel(c))
			}
		default:
			return fmt.Errorf("%w: cannot search %q", parley_errors.ErrInvalidInput, kind)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QtyUsers != out[j].QtyUsers {
			return out[i].QtyUsers > out[j].QtyUsers
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *conversationRepo) SetDiscussion(ctx context.Context, channelID int64, groupID *int64) error {
	return r.h.do(func(st *state) error {
		c, ok := st.channels[channelID]
		if !ok {
			return parley_errors.ErrNotFound
		}
		if groupID != nil {
			if _, ok := st.groups[*groupID]; !ok {
				return violation("discussion group %d does not exist", *groupID)
			}
			for id, other := range st.channels {
				if id != channelID && other.GroupID != nil && *other.GroupID == *groupID {
					return parley_errors.ErrAlreadyExists
				}
			}
			id := *groupID
			groupID = &id
		}
		c.GroupID = groupID
		st.channels[channelID] = c
		return nil
	})
}

func (r *conversationRepo) FindChannelByDiscussion(ctx context.Context, groupID int64) (conversation.Conversation, error) {
	var out conversation.Conversation
	err := r.h.do(func(st *state) error {
		for _, c := range st.channels {
			if c.GroupID != nil && *c.GroupID == groupID {
				out = conversation.FromChannel(c)
				return nil
			}
		}
		return parley_errors.ErrNotFound
	})
	return out, err
}

func (r *conversationRepo) CreateDirectChat(ctx context.Context, c *conversation.DirectChat) error {
	return r.h.do(func(st *state) error {
		if c.User1ID == c.User2ID {
			return violation("direct chat with a single participant")
		}
		for _, existing := range st.chats {
			if existing.HasParticipant(c.User1ID) && existing.HasParticipant(c.User2ID) {
				return parley_errors.ErrAlreadyExists
			}
		}
		c.ID = st.next("direct_chats")
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now()
		}
		st.chats[c.ID] = *c
		return nil
	})
}

func (r *conversationRepo) GetDirectChat(ctx context.Context, id int64) (conversation.DirectChat, error) {
	var out conversation.DirectChat
	err := r.h.do(func(st *state) error {
		c, ok := st.chats[id]
		if !ok {
			return parley_errors.ErrNotFound
		}
		out = c
		return nil
	})
	return out, err
}

func (r *conversationRepo) FindDirectChat(ctx context.Context, userA, userB int64) (conversation.DirectChat, error) {
	var out conversation.DirectChat
	err := r.h.do(func(st *state) error {
		for _, c := range st.chats {
			if c.HasParticipant(userA) && c.HasParticipant(userB) {
				out = c
				return nil
			}
		}
		return parley_errors.ErrNotFound
	})
	return out, err
}

func (r *conversationRepo) DeleteDirectChat(ctx context.Context, id int64) error {
	return r.Delete(ctx, conversation.ChatRef(id))
}

// roles

type roleRepo struct{ h *handle }

func (st *state) roleNameTaken(ref conversation.Ref, name string, except int64) bool {
	for id, rl := range st.roles {
		if id != except && sameConversation(rl.ConversationKind, rl.ConversationID, ref) && rl.Name == name {
			return true
		}
	}
	return false
}

func (r *roleRepo) Create(ctx context.Context, ref conversation.Ref, t role.Template) (role.Role, error) {
	var out role.Role
	err := r.h.do(func(st *state) error {
		if st.roleNameTaken(ref, t.Name, 0) {
			return parley_errors.ErrAlreadyExists
		}
		rl := role.Role{
			ID:               st.next("roles"),
			ConversationKind: ref.Kind,
			ConversationID:   ref.ID,
			Name:             t.Name,
			Color:            t.Color,
			IsSystem:         t.IsSystem,
			IsDefault:        t.IsDefault,
			CreatedAt:        time.Now(),
		}
		rl.Permissions = role.GrantRows(rl.ID, t.Permissions)
		st.roles[rl.ID] = rl
		out = rl
		return nil
	})
	return out, err
}

func (r *roleRepo) GetByID(ctx context.Context, id int64) (role.Role, error) {
	var out role.Role
	err := r.h.do(func(st *state) error {
		rl, ok := st.roles[id]
		if !ok {
			return parley_errors.ErrNotFound
		}
		out = rl
		return nil
	})
	return out, err
}

func (r *roleRepo) find(ref conversation.Ref, match func(role.Role) bool) (role.Role, error) {
	var out role.Role
	err := r.h.do(func(st *state) error {
		for _, rl := range st.roles {
			if sameConversation(rl.ConversationKind, rl.ConversationID, ref) && match(rl) {
				out = rl
				return nil
			}
		}
		return parley_errors.ErrNotFound
	})
	return out, err
}

func (r *roleRepo) GetByName(ctx context.Context, ref conversation.Ref, name string) (role.Role, error) {
	return r.find(ref, func(rl role.Role) bool { return rl.Name == name })
}

func (r *roleRepo) Lock(ctx context.Context, id int64) (role.Role, error) {
	return r.GetByID(ctx, id)
}

func (r *roleRepo) GetDefault(ctx context.Context, ref conversation.Ref) (role.Role, error) {
	return r.find(ref, func(rl role.Role) bool { return rl.IsDefault })
}

func (r *roleRepo) List(ctx context.Context, ref conversation.Ref) ([]role.Role, error) {
	out := []role.Role{}
	err := r.h.do(func(st *state) error {
		for _, rl := range st.roles {
			if sameConversation(rl.ConversationKind, rl.ConversationID, ref) {
				out = append(out, rl)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r *roleRepo) Update(ctx context.Context, id int64, name, color string) error {
	return r.h.do(func(st *state) error {
		rl, ok := st.roles[id]
		if !ok {
			return parley_errors.ErrNotFound
		}
		if st.roleNameTaken(rl.Ref(), name, id) {
			return parley_errors.ErrAlreadyExists
		}
		rl.Name, rl.Color = name, color
		st.roles[id] = rl
		return nil
	})
}

func (r *roleRepo) DeletePermissions(ctx context.Context, id int64) error {
	return r.h.do(func(st *state) error {
		if rl, ok := st.roles[id]; ok {
			rl.Permissions = nil
			st.roles[id] = rl
		}
		return nil
	})
}

func (r *roleRepo) InsertPermissions(ctx context.Context, id int64, set permission.Set) error {
	return r.h.do(func(st *state) error {
		rl, ok := st.roles[id]
		if !ok {
			return violation("role %d does not exist", id)
		}
		if rl.Grants()&set != 0 {
			return parley_errors.ErrAlreadyExists
		}
		rl.Permissions = role.GrantRows(id, rl.Grants()|set)
		st.roles[id] = rl
		return nil
	})
}

func (st *state) roleInUse(id int64) bool {
	for _, m := range st.memberships {
		if m.RoleID == id {
			return true
		}
	}
	return false
}

func (r *roleRepo) Delete(ctx context.Context, id int64) error {
	return r.h.do(func(st *state) error {
		if _, ok := st.roles[id]; !ok {
			return parley_errors.ErrNotFound
		}
		if st.roleInUse(id) {
			return violation("role %d is still assigned", id)
		}
		delete(st.roles, id)
		return nil
	})
}

func (r *roleRepo) DeleteByConversation(ctx context.Context, ref conversation.Ref) error {
	return r.h.do(func(st *state) error {
		for id, rl := range st.roles {
			if !sameConversation(rl.ConversationKind, rl.ConversationID, ref) {
				continue
			}
			if st.roleInUse(id) {
				return violation("role %d is still assigned", id)
			}
			delete(st.roles, id)
		}
		return nil
	})
}

// memberships

type membershipRepo struct{ h *handle }

func (st *state) membership(ref conversation.Ref, userID int64) (membership.Membership, bool) {
	for _, m := range st.memberships {
		if sameConversation(m.ConversationKind, m.ConversationID, ref) && m.UserID == userID {
			return m, true
		}
	}
	return membership.Membership{}, false
}

func (r *membershipRepo) Create(ctx context.Context, m *membership.Membership) error {
	return r.h.do(func(st *state) error {
		if _, ok := st.membership(m.Ref(), m.UserID); ok {
			return parley_errors.ErrAlreadyExists
		}
		if _, ok := st.users[m.UserID]; !ok {
			return violation("user %d does not exist", m.UserID)
		}
		if _, ok := st.roles[m.RoleID]; !ok {
			return violation("role %d does not exist", m.RoleID)
		}
		m.ID = st.next("memberships")
		if m.JoinedAt.IsZero() {
			m.JoinedAt = time.Now()
		}
		st.memberships[m.ID] = *m
		return nil
	})
}

func (r *membershipRepo) Get(ctx context.Context, ref conversation.Ref, userID int64) (membership.Membership, error) {
	var out membership.Membership
	err := r.h.do(func(st *state) error {
		m, ok := st.membership(ref, userID)
		if !ok {
			return parley_errors.ErrNotFound
		}
		out = m
		return nil
	})
	return out, err
}

func (st *state) deleteMembership(id int64) {
	delete(st.memberships, id)
	for k := range st.memberReceipts {
		if k.ownerID == id {
			delete(st.memberReceipts, k)
		}
	}
}

func (r *membershipRepo) Delete(ctx context.Context, ref conversation.Ref, userID int64) error {
	return r.h.do(func(st *state) error {
		m, ok := st.membership(ref, userID)
		if !ok {
			return parley_errors.ErrNotFound
		}
		st.deleteMembership(m.ID)
		return nil
	})
}

func (r *membershipRepo) DeleteByConversation(ctx context.Context, ref conversation.Ref) error {
	return r.h.do(func(st *state) error {
		for id, m := range st.memberships {
			if sameConversation(m.ConversationKind, m.ConversationID, ref) {
				st.deleteMembership(id)
			}
		}
		return nil
	})
}

func (st *state) membershipsOf(ref conversation.Ref) []membership.Membership {
	var out []membership.Membership
	for _, m := range st.memberships {
		if sameConversation(m.ConversationKind, m.ConversationID, ref) {
			out = append(out, m)
		}
	}
	return out
}

func (r *membershipRepo) List(ctx context.Context, ref conversation.Ref) ([]membership.Member, error) {
	out := []membership.Member{}
	err := r.h.do(func(st *state) error {
		ms := st.membershipsOf(ref)
		sort.Slice(ms, func(i, j int) bool {
			if !ms[i].JoinedAt.Equal(ms[j].JoinedAt) {
				return ms[i].JoinedAt.Before(ms[j].JoinedAt)
			}
			return ms[i].ID < ms[j].ID
		})
		for _, m := range ms {
			u := st.users[m.UserID]
			rl := st.roles[m.RoleID]
			out = append(out, membership.Member{
				ID:        m.ID,
				UserID:    m.UserID,
				UserName:  u.Name,
				RoleID:    m.RoleID,
				RoleName:  rl.Name,
				RoleColor: rl.Color,
				IsMuted:   m.IsMuted,
				JoinedAt:  m.JoinedAt,
			})
		}
		return nil
	})
	return out, err
}

func (r *membershipRepo) ListUserIDs(ctx context.Context, ref conversation.Ref) ([]int64, error) {
	var ids []int64
	err := r.h.do(func(st *state) error {
		for _, m := range st.membershipsOf(ref) {
			ids = append(ids, m.UserID)
		}
		return nil
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}

func (r *membershipRepo) update(ref conversation.Ref, userID int64, fn func(*membership.Membership) error) error {
	return r.h.do(func(st *state) error {
		m, ok := st.membership(ref, userID)
		if !ok {
			return parley_errors.ErrNotFound
		}
		if err := fn(&m); err != nil {
			return err
		}
		st.memberships[m.ID] = m
		return nil
	})
}

func (r *membershipRepo) SetRole(ctx context.Context, ref conversation.Ref, userID, roleID int64) error {
	return r.h.do(func(st *state) error {
		m, ok := st.membership(ref, userID)
		if !ok {
			return parley_errors.ErrNotFound
		}
		if _, ok := st.roles[roleID]; !ok {
			return violation("role %d does not exist", roleID)
		}
		m.RoleID = roleID
		st.memberships[m.ID] = m
		return nil
	})
}

func (r *membershipRepo) ReassignRole(ctx context.Context, fromRoleID, toRoleID int64) (int64, error) {
	var moved int64
	err := r.h.do(func(st *state) error {
		if _, ok := st.roles[toRoleID]; !ok {
			return violation("role %d does not exist", toRoleID)
		}
		for id, m := range st.memberships {
			if m.RoleID == fromRoleID {
				m.RoleID = toRoleID
				st.memberships[id] = m
				moved++
			}
		}
		return nil
	})
	return moved, err
}

func (r *membershipRepo) CountByRole(ctx context.Context, roleID int64) (int64, error) {
	var n int64
	err := r.h.do(func(st *state) error {
		for _, m := range st.memberships {
			if m.RoleID == roleID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *membershipRepo) SetMuted(ctx context.Context, ref conversation.Ref, userID int64, muted bool) error {
	return r.update(ref, userID, func(m *membership.Membership) error {
		m.IsMuted = muted
		return nil
	})
}

// notification counters

type counterRepo struct{ h *handle }

func (st *state) counter(ref conversation.Ref, userID int64) (membership.NotificationCounter, bool) {
	for _, c := range st.counters {
		if sameConversation(c.ConversationKind, c.ConversationID, ref) && c.UserID == userID {
			return c, true
		}
	}
	return membership.NotificationCounter{}, false
}

func (r *counterRepo) Create(ctx context.Context, c *membership.NotificationCounter) error {
	return r.h.do(func(st *state) error {
		ref := conversation.Ref{Kind: c.ConversationKind, ID: c.ConversationID}
		if _, ok := st.counter(ref, c.UserID); ok {
			return parley_errors.ErrAlreadyExists
		}
		if c.Count < 0 {
			return violation("negative notification counter")
		}
		c.ID = st.next("notification_counters")
		st.counters[c.ID] = *c
		return nil
	})
}

func (r *counterRepo) Get(ctx context.Context, ref conversation.Ref, userID int64) (membership.NotificationCounter, error) {
	var out membership.NotificationCounter
	err := r.h.do(func(st *state) error {
		c, ok := st.counter(ref, userID)
		if !ok {
			return parley_errors.ErrNotFound
		}
		out = c
		return nil
	})
	return out, err
}

// Adjust applies the delta to all matching counters or to none of them.
func (r *counterRepo) Adjust(ctx context.Context, ref conversation.Ref, userIDs []int64, delta int) error {
	if len(userIDs) == 0 || delta == 0 {
		return nil
	}
	return r.h.do(func(st *state) error {
		var matched []membership.NotificationCounter
		for _, uid := range userIDs {
			c, ok := st.counter(ref, uid)
			if !ok {
				continue
			}
			if c.Count+delta < 0 {
				return violation("notification counter of user %d in %s would drop below zero", uid, ref)
			}
			matched = append(matched, c)
		}
		for _, c := range matched {
			c.Count += delta
			st.counters[c.ID] = c
		}
		return nil
	})
}

func (r *counterRepo) Delete(ctx context.Context, ref conversation.Ref, userID int64) error {
	return r.h.do(func(st *state) error {
		if c, ok := st.counter(ref, userID); ok {
			delete(st.counters, c.ID)
		}
		return nil
	})
}

func (r *counterRepo) DeleteByConversation(ctx context.Context, ref conversation.Ref) error {
	return r.h.do(func(st *state) error {
		for id, c := range st.counters {
			if sameConversation(c.ConversationKind, c.ConversationID, ref) {
				delete(st.counters, id)
			}
		}
		return nil
	})
}

// messages

type messageRepo struct{ h *handle }

func (st *state) withAttachments(m message.Message) message.Message {
	m.Attachments = []message.Attachment{}
	for _, a := range st.attachments {
		if a.MessageID == m.ID {
			m.Attachments = append(m.Attachments, a)
		}
	}
	sort.Slice(m.Attachments, func(i, j int) bool { return m.Attachments[i].ID < m.Attachments[j].ID })
	return m
}

func (r *messageRepo) Create(ctx context.Context, m *message.Message) error {
	return r.h.do(func(st *state) error {
		owners := 0
		for _, id := range []*int64{m.ChatID, m.GroupID, m.ChannelID} {
			if id != nil {
				owners++
			}
		}
		if owners != 1 {
			return violation("message must belong to exactly one conversation")
		}
		if !st.exists(m.Ref()) {
			return violation("conversation %s does not exist", m.Ref())
		}
		m.ID = st.next("messages")
		now := time.Now()
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		if m.UpdatedAt.IsZero() {
			m.UpdatedAt = m.CreatedAt
		}
		for i := range m.Attachments {
			a := &m.Attachments[i]
			a.ID = st.next("message_attachments")
			a.MessageID = m.ID
			if a.CreatedAt.IsZero() {
				a.CreatedAt = now
			}
			st.attachments[a.ID] = *a
		}
		stored := *m
		stored.Attachments = nil
		st.messages[m.ID] = stored
		return nil
	})
}

func (r *messageRepo) GetByID(ctx context.Context, id int64) (message.Message, error) {
	var out message.Message
	err := r.h.do(func(st *state) error {
		m, ok := st.messages[id]
		if !ok {
			return parley_errors.ErrNotFound
		}
		out = st.withAttachments(m)
		return nil
	})
	return out, err
}

func (r *messageRepo) Lock(ctx context.Context, id int64) (message.Message, error) {
	var out message.Message
	err := r.h.do(func(st *state) error {
		m, ok := st.messages[id]
		if !ok {
			return parley_errors.ErrNotFound
		}
		out = m
		return nil
	})
	return out, err
}

func (r *messageRepo) UpdateContent(ctx context.Context, id int64, content string) error {
	return r.h.do(func(st *state) error {
		m, ok := st.messages[id]
		if !ok {
			return parley_errors.ErrNotFound
		}
		m.Content, m.IsEdited, m.UpdatedAt = content, true, time.Now()
		st.messages[id] = m
		return nil
	})
}

func (r *messageRepo) SetRead(ctx context.Context, id int64) error {
	return r.h.do(func(st *state) error {
		if m, ok := st.messages[id]; ok {
			m.IsRead = true
			st.messages[id] = m
		}
		return nil
	})
}

func (r *messageRepo) Delete(ctx context.Context, id int64) error {
	return r.h.do(func(st *state) error {
		if _, ok := st.messages[id]; !ok {
			return parley_errors.ErrNotFound
		}
		st.deleteMessage(id)
		return nil
	})
}

func (r *messageRepo) ListBefore(ctx context.Context, ref conversation.Ref, before *time.Time, limit int) ([]message.Message, error) {
	out := []message.Message{}
	err := r.h.do(func(st *state) error {
		for _, m := range st.messages {
			if m.Ref() != ref {
				continue
			}
			if before != nil && !m.CreatedAt.Before(*before) {
				continue
			}
			out = append(out, st.withAttachments(m))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *messageRepo) AddAttachment(ctx context.Context, a *message.Attachment) error {
	return r.h.do(func(st *state) error {
		if _, ok := st.messages[a.MessageID]; !ok {
			return violation("message %d does not exist", a.MessageID)
		}
		a.ID = st.next("message_attachments")
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now()
		}
		st.attachments[a.ID] = *a
		return nil
	})
}

func (r *messageRepo) InsertMemberReceipt(ctx context.Context, messageID, membershipID int64, at time.Time) (bool, error) {
	var inserted bool
	err := r.h.do(func(st *state) error {
		if _, ok := st.messages[messageID]; !ok {
			return violation("message %d does not exist", messageID)
		}
		if _, ok := st.memberships[membershipID]; !ok {
			return violation("membership %d does not exist", membershipID)
		}
		k := receiptKey{messageID: messageID, ownerID: membershipID}
		if _, ok := st.memberReceipts[k]; ok {
			return nil
		}
		st.memberReceipts[k] = at
		inserted = true
		return nil
	})
	return inserted, err
}

func (r *messageRepo) InsertUserReceipt(ctx context.Context, messageID, userID int64, at time.Time) (bool, error) {
	var inserted bool
	err := r.h.do(func(st *state) error {
		if _, ok := st.messages[messageID]; !ok {
			return violation("message %d does not exist", messageID)
		}
		k := receiptKey{messageID: messageID, ownerID: userID}
		if _, ok := st.userReceipts[k]; ok {
			return nil
		}
		st.userReceipts[k] = at
		inserted = true
		return nil
	})
	return inserted, err
}

func (r *messageRepo) HasUserReceipt(ctx context.Context, messageID, userID int64) (bool, error) {
	var ok bool
	err := r.h.do(func(st *state) error {
		_, ok = st.userReceipts[receiptKey{messageID: messageID, ownerID: userID}]
		return nil
	})
	return ok, err
}

func (r *messageRepo) UnreadMemberIDs(ctx context.Context, m message.Message) ([]int64, error) {
	var ids []int64
	err := r.h.do(func(st *state) error {
		for _, ms := range st.membershipsOf(m.Ref()) {
			if ms.UserID == m.SenderID || ms.JoinedAt.After(m.CreatedAt) {
				continue
			}
			if _, read := st.memberReceipts[receiptKey{messageID: m.ID, ownerID: ms.ID}]; read {
				continue
			}
			ids = append(ids, ms.UserID)
		}
		return nil
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}
