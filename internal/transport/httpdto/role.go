package httpdto

// RoleRequest is used to create a role and to replace one wholesale.
type RoleRequest struct {
	Name        string   `json:"name" binding:"required,max=64"`
	Color       string   `json:"color" binding:"max=32"`
	Permissions []string `json:"permissions"`
}

type AssignRoleRequest struct {
	RoleName string `json:"role_name" binding:"required"`
}
