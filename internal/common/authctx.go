package common

import "context"

type ctxKey string

const (
	operatorKey     ctxKey = "auth/operator"
	operatorSlotKey ctxKey = "auth/operator-slot"
)

// Operator is the authenticated staff member driving the till. Capabilities
// are resolved at login; downstream code consults them instead of role names.
type Operator struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	CanReassignStaff bool   `json:"canReassignStaff"`
}

type operatorSlot struct {
	op Operator
}

// WithOperatorSlot reserves room for an operator resolved further down the
// handler chain, so outer middleware such as request logging can read it
// after the inner handler returns.
func WithOperatorSlot(ctx context.Context) context.Context {
	if _, ok := ctx.Value(operatorSlotKey).(*operatorSlot); ok {
		return ctx
	}
	return context.WithValue(ctx, operatorSlotKey, &operatorSlot{})
}

// WithOperator stores the authenticated operator on the provided context.
func WithOperator(ctx context.Context, op Operator) context.Context {
	if slot, ok := ctx.Value(operatorSlotKey).(*operatorSlot); ok {
		slot.op = op
	}
	return context.WithValue(ctx, operatorKey, op)
}

// OperatorFrom extracts the authenticated operator from the context if present.
func OperatorFrom(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(operatorKey).(Operator)
	if !ok {
		if slot, found := ctx.Value(operatorSlotKey).(*operatorSlot); found {
			op = slot.op
		}
	}
	if op.ID == "" {
		return Operator{}, false
	}
	return op, true
}
