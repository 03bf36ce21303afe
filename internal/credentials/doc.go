// Package credentials persists the access/refresh token pair issued by the
// authentication backend. The pair is opaque to the rest of the console
// apart from reading the access token expiry for refresh scheduling.
package credentials
