package repository

import (
	"fmt"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/membership"
	"parley-chat/internal/domain/message"
	"parley-chat/internal/domain/role"
	"parley-chat/internal/domain/user"

	"gorm.io/gorm"
)

// Models lists every table owned by this service, in creation order.
func Models() []interface{} {
	return []interface{}{
		&user.User{},
		&conversation.Group{},
		&conversation.Channel{},
		&conversation.DirectChat{},
		&role.Role{},
		&role.RolePermission{},
		&membership.Membership{},
		&membership.NotificationCounter{},
		&message.Message{},
		&message.Attachment{},
		&message.MemberReceipt{},
		&message.UserReceipt{},
	}
}

// schemaConstraints are the constraints gorm tags cannot express. Each runs in a DO block so
// re-running the migration is a no-op.
var schemaConstraints = []struct {
	name string
	sql  string
}{
	{"chk_messages_single_owner", `ALTER TABLE messages ADD CONSTRAINT chk_messages_single_owner
		CHECK (num_nonnulls(chat_id, group_id, channel_id) = 1)`},
	{"fk_messages_chat", `ALTER TABLE messages ADD CONSTRAINT fk_messages_chat
		FOREIGN KEY (chat_id) REFERENCES direct_chats(id) ON DELETE CASCADE`},
	{"fk_messages_group", `ALTER TABLE messages ADD CONSTRAINT fk_messages_group
		FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE`},
	{"fk_messages_channel", `ALTER TABLE messages ADD CONSTRAINT fk_messages_channel
		FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE`},
	{"fk_member_receipts_message", `ALTER TABLE member_receipts ADD CONSTRAINT fk_member_receipts_message
		FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE`},
	{"fk_member_receipts_membership", `ALTER TABLE member_receipts ADD CONSTRAINT fk_member_receipts_membership
		FOREIGN KEY (membership_id) REFERENCES memberships(id) ON DELETE CASCADE`},
	{"fk_user_receipts_message", `ALTER TABLE user_receipts ADD CONSTRAINT fk_user_receipts_message
		FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE`},
	{"fk_memberships_role", `ALTER TABLE memberships ADD CONSTRAINT fk_memberships_role
		FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE RESTRICT`},
	{"fk_memberships_user", `ALTER TABLE memberships ADD CONSTRAINT fk_memberships_user
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE`},
	{"chk_direct_chats_distinct", `ALTER TABLE direct_chats ADD CONSTRAINT chk_direct_chats_distinct
		CHECK (user1_id <> user2_id)`},
	{"uq_direct_chats_pair", `CREATE UNIQUE INDEX IF NOT EXISTS uq_direct_chats_pair
		ON direct_chats (LEAST(user1_id, user2_id), GREATEST(user1_id, user2_id))`},
}

// InitSchema runs gorm auto-migration and then adds the constraints gorm cannot express.
func InitSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	for _, c := range schemaConstraints {
		stmt := `DO $$ BEGIN
			` + c.sql + `;
		EXCEPTION
			WHEN duplicate_object THEN null;
		END $$;`
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to add constraint %s: %w", c.name, err)
		}
	}

	return nil
}
