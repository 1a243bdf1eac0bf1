// Package authz — проверка прав: принципал + capability → allow/deny.
package authz

import (
	"context"
	"strings"
)

// Действия над ресурсами.
const (
	ActionView   = "view"
	ActionAdd    = "add"
	ActionChange = "change"
	ActionDelete = "delete"
)

// Actions — все допустимые действия.
var Actions = []string{ActionView, ActionAdd, ActionChange, ActionDelete}

// Principal — идентичность, от имени которой выполняется запрос.
type Principal struct {
	UserID        int64
	Email         string
	Authenticated bool
	Staff         bool
	Superuser     bool
	Capabilities  []string
}

// Anonymous — неаутентифицированный принципал.
var Anonymous = Principal{}

// Capability строит ключ вида "<resourceType>.<action>".
func Capability(resourceType, action string) string {
	return resourceType + "." + action
}

// ValidCapability проверяет форму ключа и действие.
func ValidCapability(c string) bool {
	i := strings.LastIndexByte(c, '.')
	if i <= 0 || i == len(c)-1 {
		return false
	}
	action := c[i+1:]
	for _, a := range Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Check: суперпользователю разрешено всё, staff — только явно выданное,
// неаутентифицированному и не-staff — ничего.
func Check(p Principal, capability string) bool {
	if !p.Authenticated {
		return false
	}
	if p.Superuser {
		return true
	}
	if !p.Staff {
		return false
	}
	for _, c := range p.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

type principalKey struct{}

// WithPrincipal кладёт принципала в контекст запроса.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext достаёт принципала; по умолчанию Anonymous.
func FromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok {
		return p
	}
	return Anonymous
}
