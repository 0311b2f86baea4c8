// cmd/crmctl/main.go
//
// Operator CLI: migrations, archive housekeeping, tokens, and role grants.
package main

import (
	"os"

	"github.com/yanizio/sportcrm/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
