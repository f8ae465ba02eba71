// Command load runs the batch dataset loaders against the configured
// warehouse.
package main

import (
	"os"
)

func main() {
	os.Exit(int(run()))
}
