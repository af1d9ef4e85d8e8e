// Package validation provides common validation utilities for throttle
// definitions and properties across the detthrottle module.
//
// This package offers reusable validation functions that help ensure
// consistent error messages and reduce boilerplate code in definition
// loaders and constructors.
package validation
