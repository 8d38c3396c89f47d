// Package social holds the pieces shared by social sign-in providers: the
// single-use OAuth state store that ties a callback to the start request
// that issued it.
package social
