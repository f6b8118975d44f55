package model

// User is a person who receives alarm emails.
type User struct {
	// ID is the unique identifier of the user in the information model.
	ID string
	// Name is the display name of the user.
	Name string
	// Email is the address notifications are sent to.
	Email string
}

// EntityID returns the identifier of the user.
func (u *User) EntityID() string {
	return u.ID
}

// EmailAddress returns the email address of the user.
func (u *User) EmailAddress() string {
	return u.Email
}
