package models

// UserRole represents the roles supplied by the identity provider.
type UserRole string

const (
	RoleWorker     UserRole = "WORKER"
	RoleSupervisor UserRole = "SUPERVISOR"
	RoleAdmin      UserRole = "ADMIN"
)

// Actor is the explicit identity threaded through every command.
type Actor struct {
	UserID       string   `json:"userId" validate:"required"`
	SectorID     string   `json:"sectorId"`
	DepartmentID string   `json:"departmentId"`
	Role         UserRole `json:"role" validate:"required,oneof=WORKER SUPERVISOR ADMIN"`
}

// Elevated reports whether the actor bypasses sector scoping.
func (a Actor) Elevated() bool {
	return a.Role == RoleAdmin
}

// CanSupervise reports whether the actor may approve work done in sectorID.
func (a Actor) CanSupervise(sectorID string) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleSupervisor:
		return a.SectorID == sectorID
	case RoleWorker:
		return false
	}
	return false
}

// ActorFromClaims converts validated token claims into an actor.
func ActorFromClaims(c *JWTClaims) Actor {
	if c == nil {
		return Actor{}
	}
	return Actor{
		UserID:       c.UserID,
		SectorID:     c.SectorID,
		DepartmentID: c.DepartmentID,
		Role:         c.Role,
	}
}
