package role

import (
	"time"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/permission"
)

const (
	AdminName          = "Администратор"
	GroupDefaultName   = "Участник"
	ChannelDefaultName = "Подписчик"

	AdminColor   = "#e53935"
	DefaultColor = "#9e9e9e"
)

// Role represents the roles table
type Role struct {
	ID               int64             `gorm:"primaryKey" json:"id"`
	ConversationKind conversation.Kind `gorm:"type:varchar(16);not null;uniqueIndex:idx_roles_conversation_name,priority:1" json:"-"`
	ConversationID   int64             `gorm:"not null;uniqueIndex:idx_roles_conversation_name,priority:2" json:"-"`
	Name             string            `gorm:"size:64;not null;uniqueIndex:idx_roles_conversation_name,priority:3" json:"name"`
	Color            string            `gorm:"size:16" json:"color"`
	IsSystem         bool              `gorm:"not null;default:false" json:"isSystemRole"`
	IsDefault        bool              `gorm:"not null;default:false" json:"isDefault"`
	Permissions      []RolePermission  `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt        time.Time         `json:"createdAt"`
}

func (Role) TableName() string {
	return "roles"
}

func (r Role) Ref() conversation.Ref {
	return conversation.Ref{Kind: r.ConversationKind, ID: r.ConversationID}
}

// Grants collapses the loaded permission rows into a set.
func (r Role) Grants() permission.Set {
	perms := make([]permission.Permission, len(r.Permissions))
	for i, p := range r.Permissions {
		perms[i] = p.Permission
	}
	return permission.NewSet(perms...)
}

// RolePermission represents the role_permissions table
type RolePermission struct {
	RoleID     int64                 `gorm:"primaryKey"`
	Permission permission.Permission `gorm:"primaryKey;type:varchar(32)"`
}

func (RolePermission) TableName() string {
	return "role_permissions"
}

// Grant rows for a role, in catalog order.
func GrantRows(roleID int64, set permission.Set) []RolePermission {
	perms := set.Slice()
	rows := make([]RolePermission, len(perms))
	for i, p := range perms {
		rows[i] = RolePermission{RoleID: roleID, Permission: p}
	}
	return rows
}

// Template describes a role to be created.
type Template struct {
	Name        string
	Color       string
	Permissions permission.Set
	IsSystem    bool
	IsDefault   bool
}

// View is a role together with its grant set, as returned to clients.
type View struct {
	Role
	Grants permission.Set `json:"permissions"`
}

func NewView(r Role) View {
	return View{Role: r, Grants: r.Grants()}
}

// SystemTemplates returns the admin and default role created with every group or channel.
func SystemTemplates(kind conversation.Kind) (admin Template, member Template) {
	switch kind {
	case conversation.KindChannel:
		admin = Template{Name: AdminName, Color: AdminColor, Permissions: permission.All(), IsSystem: true}
		member = Template{
			Name:        ChannelDefaultName,
			Color:       DefaultColor,
			Permissions: permission.NewSet(permission.AddMember),
			IsSystem:    true,
			IsDefault:   true,
		}
	default:
		admin = Template{
			Name:        AdminName,
			Color:       AdminColor,
			Permissions: permission.All().Without(permission.ChangeDiscussion),
			IsSystem:    true,
		}
		member = Template{
			Name:        GroupDefaultName,
			Color:       DefaultColor,
			Permissions: permission.NewSet(permission.AddMember, permission.SendMessage, permission.AddMedia),
			IsSystem:    true,
			IsDefault:   true,
		}
	}
	return admin, member
}
