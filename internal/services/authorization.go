package services

import "github.com/eventcard/backend/internal/models"

// Operation names an engine operation for the authorization gate
type Operation string

const (
	OpSale        Operation = "SALE"
	OpRecharge    Operation = "RECHARGE"
	OpRefund      Operation = "REFUND"
	OpRefundTotal Operation = "REFUND_TOTAL"
	OpVoidSale    Operation = "VOID_SALE"
	OpBlockCard   Operation = "BLOCK_CARD"
	OpUnblockCard Operation = "UNBLOCK_CARD"
)

var operationRoles = map[Operation][]models.Role{
	OpSale:        {models.RoleSeller, models.RoleCashier},
	OpRecharge:    {models.RoleCashier},
	OpRefund:      {models.RoleManager},
	OpRefundTotal: {models.RoleManager},
	OpVoidSale:    {models.RoleManager},
	OpBlockCard:   {models.RoleManager},
	OpUnblockCard: {models.RoleManager},
}

// Authorize decides whether role may perform op. ADMINISTRATOR is always
// allowed; unknown operations are denied.
func Authorize(role models.Role, op Operation) bool {
	allowed, ok := operationRoles[op]
	if !ok {
		return false
	}
	if role == models.RoleAdministrator {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// authorizeActor checks role and event scope before any lock is taken.
func authorizeActor(actor models.Actor, eventID string, op Operation) error {
	if err := scopeActor(actor, eventID); err != nil {
		return err
	}
	if !Authorize(actor.Role, op) {
		return ErrUnauthorized
	}
	return nil
}

// scopeActor confines reads to the actor's own event.
func scopeActor(actor models.Actor, eventID string) error {
	if actor.ID == "" || actor.EventID == "" || actor.EventID != eventID {
		return ErrUnauthorized
	}
	return nil
}
