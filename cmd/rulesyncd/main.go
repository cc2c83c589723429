// Command rulesyncd is the reconciliation core's process boundary: a
// small RPC server that projects the artifact catalog onto the filesystem
// paths each supported AI-assistant tool expects, plus a handful of
// one-shot operational subcommands (reconcile, status, migrate, mount).
package main

import (
	"fmt"
	"os"

	"github.com/mkern/rulesync/cmd/rulesyncd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}
