// Command termctl manages terminal sessions on a termhub server.
//
// Usage:
//
//	termctl create                     # shell in the working directory
//	termctl create -m opus -n review   # agent session
//	termctl list -a -o yaml
//	termctl attach term_01J...         # Ctrl-] detaches
//	termctl pause|resume|close <session>
//
// Environment:
//   - TERMHUB_URL: server base URL
//   - TERMCTL_STORE: session catalogue path
//   - MAX_SESSIONS, INACTIVITY_TIMEOUT, BACKGROUND_TIMEOUT: policy limits
package main

import (
	"os"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
