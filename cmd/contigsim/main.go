// The contigsim command simulates contiguous-memory allocation over a fixed
// address space, driven by a line-oriented command protocol.
package main

func main() {
	Execute()
}
