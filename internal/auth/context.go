package auth

import (
	"context"

	"github.com/dooropener/dooropener/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	principalContextKey contextKey = "principal"
	deviceContextKey    contextKey = "device_auth"
)

// ContextWithPrincipal attaches the session Principal to the context.
func ContextWithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext returns the session Principal, or nil for anonymous requests.
func PrincipalFromContext(ctx context.Context) *model.Principal {
	p, ok := ctx.Value(principalContextKey).(*model.Principal)
	if !ok {
		return nil
	}
	return p
}

// ContextWithDevice attaches an authenticated device to the context.
func ContextWithDevice(ctx context.Context, device *model.DeviceAuthContext) context.Context {
	return context.WithValue(ctx, deviceContextKey, device)
}

// DeviceFromContext returns the authenticated device, or nil if none.
func DeviceFromContext(ctx context.Context) *model.DeviceAuthContext {
	device, ok := ctx.Value(deviceContextKey).(*model.DeviceAuthContext)
	if !ok {
		return nil
	}
	return device
}

// DeviceKeyIDFromContext returns the device key ID, or empty string if none.
func DeviceKeyIDFromContext(ctx context.Context) string {
	device := DeviceFromContext(ctx)
	if device == nil {
		return ""
	}
	return device.KeyID
}
