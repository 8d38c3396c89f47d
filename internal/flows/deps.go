package flows

// Deps groups flow dependency sets. The root engine builds this once and each
// controller reuses it for every submission.
type Deps struct {
	Submit SubmitDeps
}
