// Package session is the Session Registry: the single source of truth
// for which clients are connected, through which transport, what
// notifications they want and whether they are authenticated.
//
// Transports report connections through the dispatcher, which calls
// RegisterClient / UnregisterClient. Responses go out through Send and
// notifications through Broadcast, which groups recipients so each
// transport receives one SendMulti.
package session
