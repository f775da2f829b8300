// Command ventus serves a directory over the Ventus protocol and mirrors
// local trees against a server.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already printed the error.
		os.Exit(1)
	}
}
