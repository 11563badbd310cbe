// Package elevate runs commands, optionally with elevated privileges.
//
// Execute runs a plain subprocess and captures its output. Manager wraps
// commands with sudo or doas, starting a credential session on first use
// and keeping it alive in the background until Close.
package elevate
