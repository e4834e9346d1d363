// Package main is the entry point of domainctl, the terminal client of the
// domain search service.
package main

import (
	"os"

	"github.com/kirychukyurii/domain-search/cmd/domainctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
