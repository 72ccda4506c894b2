// Package hash provides the non-cryptographic checksums used to detect
// on-disk payload corruption. Content identity hashing lives in the
// fingerprint package; this is integrity only.
package hash
