// Package main is the entry point for wakeacct, the wakelock time
// attribution service.
package main

func main() {
	Execute()
}
