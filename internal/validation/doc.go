// Package validation holds the pure input checks used by the authentication
// flows: the sanitizer, single-field validators, the password strength
// scorer and phone number helpers.
//
// None of these functions return errors. Invalid input is always reported
// through a Result's Errors, ordered by check precedence.
package validation
