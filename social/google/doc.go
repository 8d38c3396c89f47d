// Package google signs users in with their Google account through the OAuth
// 2.0 authorization code flow.
package google
