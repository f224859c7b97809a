// Package podauth provides the credential lifecycle used by PODSTREAM:
// password and federated signin, one time password (OTP) challenges,
// password reset sessions and bearer token issuance.
//
// Session machine:
//   - SessionMachine orchestrates every flow. It depends on a Users store,
//     a PasswordHasher, a TokenService, a ChallengeStore and a Notifier, all
//     of which can be swapped for tests or alternative backends.
//
// Challenges:
//   - OTP challenges are keyed by (email, purpose) so verification codes and
//     password reset codes never overwrite each other. Verification is an
//     atomic compare-and-consume that also records the reset grant for the
//     email. Challenges expire and are discarded after too many failed
//     attempts.
//   - MemoryChallengeStore keeps state in process. RedisChallengeStore shares
//     it across instances using Lua scripts for the atomic transitions.
//
// Tokens:
//   - Access tokens are short lived HS256 JWTs. Refresh tokens are opaque,
//     persisted, rotated on use and revoked on logout.
//
// Activity sinks:
//   - ActivitySink is a best effort audit emitter. Sink errors are logged
//     and never fail the authentication flow.
package podauth
