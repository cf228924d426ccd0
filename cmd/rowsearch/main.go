// Command rowsearch keeps a full-text index in sync with a SQL table and
// serves searches over it.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/rowsearch/cmd/rowsearch/cmd"
	"github.com/Aman-CERP/rowsearch/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprint(os.Stderr, errors.FormatForCLI(err))
		os.Exit(1)
	}
}
