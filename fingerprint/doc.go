// Package fingerprint derives stable cache identities from dataset content
// and computation parameters.
//
// A Fingerprint is a SHA-256 value over three inputs: the dataset's content
// digest, the computation identifier, and a canonical encoding of the
// parameter set. Byte-identical inputs always produce the same fingerprint;
// any difference produces a different one with overwhelming probability.
//
// Parameters are restricted to a closed set of value kinds so the canonical
// encoding stays deterministic. Passing anything else (a channel, a live
// handle, an arbitrary struct) fails with UnhashableError instead of being
// stringified on a best-effort basis.
package fingerprint
