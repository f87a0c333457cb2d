package domain

type Role string

const (
	RoleUser   Role = "USER"
	RoleMentor Role = "MENTOR"
	RoleAdmin  Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleMentor, RoleAdmin:
		return true
	}
	return false
}

// Actor is the verified caller identity handed to the engine by the
// transport layer.
type Actor struct {
	ID   int64
	Role Role
}

func (a Actor) Is(role Role) bool { return a.Role == role }

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
