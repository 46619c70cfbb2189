// Package testutil contains helpers used across tests to reduce boilerplate:
// content builders, scripted models, stub invokers and a recording sender.
// They are not intended for production usage.
package testutil
