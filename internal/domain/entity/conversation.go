package entity

import "time"

type Role string

const (
	RoleChef    Role = "chef"
	RoleManager Role = "manager"
	RoleSystem  Role = "system"
)

// Counterpart returns the other human party. System has none.
func (r Role) Counterpart() Role {
	switch r {
	case RoleChef:
		return RoleManager
	case RoleManager:
		return RoleChef
	}
	return ""
}

// IsParty reports whether r is one of the two human roles.
func (r Role) IsParty() bool {
	return r == RoleChef || r == RoleManager
}

// Conversation pairs one chef and one manager around one application.
type Conversation struct {
	ID                 string    `json:"id"`
	ApplicationID      int64     `json:"application_id"`
	ChefID             int64     `json:"chef_id"`
	ManagerID          int64     `json:"manager_id"`
	LocationID         int64     `json:"location_id"`
	CreatedAt          time.Time `json:"created_at"`
	LastMessageAt      time.Time `json:"last_message_at"`
	UnreadChefCount    int64     `json:"unread_chef_count"`
	UnreadManagerCount int64     `json:"unread_manager_count"`
}

// PartyID returns the stored identity for role, 0 when unknown.
func (c *Conversation) PartyID(role Role) int64 {
	switch role {
	case RoleChef:
		return c.ChefID
	case RoleManager:
		return c.ManagerID
	}
	return 0
}

// ConversationUpdate is a single-document partial update. Nil and zero
// members are left untouched.
type ConversationUpdate struct {
	ChefID           *int64
	ManagerID        *int64
	TouchLastMessage bool
	IncrementUnread  Role
	ResetUnread      Role
}

func (u ConversationUpdate) IsEmpty() bool {
	return u.ChefID == nil && u.ManagerID == nil && !u.TouchLastMessage &&
		u.IncrementUnread == "" && u.ResetUnread == ""
}

// SetPartyID records a heal of role's identity field.
func (u *ConversationUpdate) SetPartyID(role Role, id int64) {
	switch role {
	case RoleChef:
		u.ChefID = &id
	case RoleManager:
		u.ManagerID = &id
	}
}
