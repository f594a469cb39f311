// Package password provides Argon2id hashing in PHC string format and the
// complexity policy applied to password changes.
package password
