// Package password hashes and verifies account passwords with argon2id for
// the local identity backend.
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// caller can rehash after the next successful sign-in.
//
// Length policy lives here ([ErrPasswordTooShort], [ErrPasswordTooLong]); the
// Login form itself only checks that a password is present.
package password
