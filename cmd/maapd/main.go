// Command maapd hosts a MAAP negotiation engine against a real network
// interface: it owns the raw socket, the wall-clock timer, and the
// event loop that feeds packets and timer expiries into a maap.Client.
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
