package entity

import "strconv"

type UserLoginData struct {
	ID       string
	Username string
	Email    string
	Token    string
}

// NumericID returns the user id as a number for backends that key users by
// integer, or 0 when the id is not numeric.
func (u UserLoginData) NumericID() int64 {
	id, err := strconv.ParseInt(u.ID, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
