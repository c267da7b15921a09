// Package environment detects which wallet capabilities the calling runtime offers.
package environment

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/farmgoods-io/farm-wallet-client/internal/constants"
)

// Facts describe the runtime the storefront is running in.
type Facts struct {
	NativeBridge     bool   `json:"nativeBridge"`
	InjectedProvider bool   `json:"injectedProvider"`
	UserAgent        string `json:"userAgent,omitempty"`
	ViewportWidth    int    `json:"viewportWidth,omitempty"`
	// MobileHint is set from the Sec-CH-UA-Mobile client hint.
	MobileHint bool `json:"mobileHint,omitempty"`
}

// IsMobile reports a mobile user agent or a narrow viewport.
func (f Facts) IsMobile() bool {
	return f.MobileHint || IsMobile(f.UserAgent, f.ViewportWidth)
}

var mobileUA = regexp.MustCompile(`(?i)Android|webOS|iPhone|iPad|iPod|BlackBerry|IEMobile|Opera Mini`)

func IsMobile(userAgent string, viewportWidth int) bool {
	if mobileUA.MatchString(userAgent) {
		return true
	}
	return viewportWidth > 0 && viewportWidth < constants.MobileViewportWidth
}

// Probe returns the facts for the current attempt.
type Probe interface {
	Detect(ctx context.Context) Facts
}

// StaticProbe returns Base, overridden by any Facts carried in ctx.
type StaticProbe struct {
	Base Facts
}

func (p StaticProbe) Detect(ctx context.Context) Facts {
	if f, ok := FromContext(ctx); ok {
		return f
	}
	return p.Base
}

const (
	HeaderMobileHint    = "Sec-CH-UA-Mobile"
	HeaderViewportWidth = "Viewport-Width"
	HeaderViewportAlt   = "X-Viewport-Width"
	HeaderNativeBridge  = "X-Wallet-Native"
	HeaderInjected      = "X-Wallet-Injected"
)

// FromRequest reads the facts a browser client reports via headers,
// starting from base for anything the request does not say.
func FromRequest(r *http.Request, base Facts) Facts {
	f := base
	if ua := r.Header.Get("User-Agent"); ua != "" {
		f.UserAgent = ua
	}
	if strings.TrimSpace(r.Header.Get(HeaderMobileHint)) == "?1" {
		f.MobileHint = true
	}
	for _, h := range []string{HeaderViewportWidth, HeaderViewportAlt} {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				f.ViewportWidth = n
				break
			}
		}
	}
	if v, ok := boolHeader(r, HeaderNativeBridge); ok {
		f.NativeBridge = v
	}
	if v, ok := boolHeader(r, HeaderInjected); ok {
		f.InjectedProvider = v
	}
	return f
}

func boolHeader(r *http.Request, name string) (bool, bool) {
	v := strings.TrimSpace(r.Header.Get(name))
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

type ctxKey struct{}

func WithFacts(ctx context.Context, f Facts) context.Context {
	return context.WithValue(ctx, ctxKey{}, f)
}

func FromContext(ctx context.Context) (Facts, bool) {
	f, ok := ctx.Value(ctxKey{}).(Facts)
	return f, ok
}
