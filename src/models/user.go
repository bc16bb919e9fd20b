package models

type Role string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
	RoleBanned    Role = "banned"
)

func (r Role) IsStaff() bool {
	return r == RoleModerator || r == RoleAdmin
}

type User struct {
	ID int `db:"id"`

	Username    string `db:"username"`
	DisplayName string `db:"display_name"`
	Role        Role   `db:"role"`
}

func (u *User) BestName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Display metadata for a reply or topic author.
type Author struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	IsStaff  bool   `json:"is_staff"`
}

func (u *User) Author() Author {
	return Author{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.BestName(),
		IsStaff:  u.Role.IsStaff(),
	}
}
