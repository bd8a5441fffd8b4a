// Package textutil sanitizes user-supplied names for filesystem and header
// use.
package textutil
