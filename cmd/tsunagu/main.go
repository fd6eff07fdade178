// Package main is the tsunagu CLI entry point.
package main

func main() {
	Execute()
}
