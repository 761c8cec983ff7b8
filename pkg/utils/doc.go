// Package utils provides small helpers shared across packages.
package utils
