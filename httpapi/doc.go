// Package httpapi serves Login forms over HTTP. Each open form is one
// credflow.Controller kept in a FormRegistry; clients drive it with field
// updates, mode toggles and submits, and read back its State.
//
// Authenticated responses carry the session token in a cookie and a
// "navigate" hint pointing at the guarded home route.
package httpapi
