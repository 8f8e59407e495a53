// Package auth manages the hub's local users and the session tokens
// handed to JSON-RPC clients.
//
// It provides:
//   - Argon2id password hashing (PHC string format)
//   - HS256 JWT session tokens whose SHA-256 is recorded in SQLite, so a
//     token can be listed and revoked per device
//   - Manager, which caches whether users exist and which tokens are live
//     so that per-call validation never touches the database
//
// The first user is created by an unauthenticated JSONRPC.CreateUser
// call; once a user exists every client must present a token.
package auth
