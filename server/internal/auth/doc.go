// Package auth authenticates API callers.
//
// Tokens are HS256 JWTs carrying the user's email as subject and the role as
// a private claim. Service.Validate accepts a token only while the user it
// names is still active, so deactivating an account revokes its tokens.
//
// Authenticate and RequireRole wrap HTTP handlers; UnaryInterceptor guards
// the gRPC operations endpoint with the same tokens.
package auth
