package models

import "strings"

// Role is the staff role resolved by the identity provider
type Role string

const (
	RoleCashier       Role = "CASHIER"
	RoleSeller        Role = "SELLER"
	RoleManager       Role = "MANAGER"
	RoleAdministrator Role = "ADMINISTRATOR"
)

// role names still carried by tokens issued by the older terminals
var legacyRoles = map[string]Role{
	"CAJERO":        RoleCashier,
	"VENDEDOR":      RoleSeller,
	"ENCARGADO":     RoleManager,
	"ADMINISTRADOR": RoleAdministrator,
}

// ParseRole maps a claim value to a Role
func ParseRole(s string) (Role, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch r := Role(s); r {
	case RoleCashier, RoleSeller, RoleManager, RoleAdministrator:
		return r, true
	}
	r, ok := legacyRoles[s]
	return r, ok
}

// Actor is the resolved identity behind a request
type Actor struct {
	ID      string `json:"actorId"`
	Role    Role   `json:"role"`
	EventID string `json:"eventId"`
}
