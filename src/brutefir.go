// Package brutefir is a Go port of the BruteFIR convolution engine's
// digital audio I/O core.
package brutefir
