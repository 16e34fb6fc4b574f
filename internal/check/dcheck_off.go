//go:build !debug

package check

// DCheckIsOn reports whether DCheck assertions are evaluated.
const DCheckIsOn = false
