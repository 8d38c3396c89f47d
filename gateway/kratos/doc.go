// Package kratos adapts the Ory Kratos native self-service API to
// credflow.AuthGateway. Sign-in, sign-up and recovery each create a native
// flow and submit it in one call; the Kratos session token becomes the
// credflow session token.
package kratos
