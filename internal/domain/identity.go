package domain

import "fmt"

// Roles carried in identity claims.
const (
	RoleCustomer      = "customer"
	RoleBusinessOwner = "business_owner"
	RoleAdmin         = "admin"
)

// Identity is the authenticated subject behind a request or connection.
type Identity struct {
	ID    int64
	Name  string
	Email string
	Role  string
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// UserGroup is the broadcast group of every connection belonging to a user.
func UserGroup(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// RoomGroup is the broadcast group of every connection viewing a room.
func RoomGroup(roomID int64) string {
	return fmt.Sprintf("room:%d", roomID)
}
