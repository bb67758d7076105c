// Package csrf provides CSRF protection for Go net/http servers using the
// double-submit cookie pattern, optionally backed by the synchronizer token
// pattern when a session store is configured.
//
// How it works
//   - Safe methods (GET, HEAD, OPTIONS, TRACE): keep the client's token when it
//     is still live, otherwise generate one; persist it with a refreshed idle
//     expiry, set the cookie and inject the token into the request context so
//     handlers can read it via TokenFromContext.
//   - Unsafe methods (everything else): the Origin header, when present, must
//     match the request host or a trusted origin; without Origin, HTTPS
//     requests must carry a matching Referer. The client-provided token must
//     equal the cookie (constant time) and be live in Storage or the Session.
//
// Failures are reported as one of ErrTokenNotFound, ErrTokenInvalid,
// ErrRefererNotFound, ErrRefererInvalid, ErrRefererNoMatch, ErrOriginInvalid
// or ErrOriginNoMatch to Config.ErrorHandler, which defaults to a bare
// 403 Forbidden.
//
// # Configuration
//
// All behavior is driven by Config. Key fields include:
//   - CookieName, CookiePath, CookieDomain, CookieSecure, CookieHTTPOnly,
//     CookieSameSite, CookieSessionOnly
//   - KeyLookup (default: "header:X-CSRF-Token") or a custom Extractor
//   - IdleTimeout (default: 1h), SingleUseToken, KeyGenerator
//   - Storage (default: in-memory) or Session + SessionKey
//   - TrustedOrigins, e.g. "https://app.example.com", "https://*.example.com"
//
// Typical usage
//
//	p, err := csrf.New(csrf.Config{TrustedOrigins: []string{"https://*.example.com"}})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	protected := p.Protect(appMux)
//	http.ListenAndServe(":8080", protected)
//
// In handlers, you can read the token from context for rendering or APIs:
//
//	if tok, ok := csrf.TokenFromContext(r.Context()); ok {
//	    // use tok in templates or return it from an endpoint
//	}
//
// After login or logout, revoke the token so a new one is issued:
//
//	if h, ok := csrf.HandlerFromContext(r.Context()); ok {
//	    _ = h.DeleteToken(w, r)
//	}
package csrf
