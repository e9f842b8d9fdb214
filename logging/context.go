package logging

import "context"

type contextKey string

// Context keys read by the *Context logging functions.
const (
	KeyTrapID    contextKey = "trap_id"
	KeySourceIP  contextKey = "source_ip"
	KeyTrapOID   contextKey = "trap_oid"
	KeyOperation contextKey = "operation"
)

var contextKeys = []contextKey{KeyTrapID, KeySourceIP, KeyTrapOID, KeyOperation}

// WithTrap stores the trap identifier and source address in ctx.
// Empty values are not stored.
func WithTrap(ctx context.Context, trapID, sourceIP string) context.Context {
	if trapID != "" {
		ctx = context.WithValue(ctx, KeyTrapID, trapID)
	}
	if sourceIP != "" {
		ctx = context.WithValue(ctx, KeySourceIP, sourceIP)
	}
	return ctx
}

// WithValue stores one logging field in ctx.
func WithValue(ctx context.Context, key contextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// withContextFields appends the fields found in ctx to args.
func withContextFields(ctx context.Context, args []any) []any {
	if ctx == nil {
		return args
	}
	for _, key := range contextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			args = append(args, string(key), v)
		}
	}
	return args
}
