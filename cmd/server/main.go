// Command server runs the smilecook recipe API.
//
//	server            start the HTTP server (same as "server serve")
//	server serve      start the HTTP server
//	server migrate    apply database migrations and exit
//
// Configuration comes from the environment, optionally seeded from a .env
// file in the working directory (see internal/config).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
