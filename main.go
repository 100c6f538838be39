// The main package for the catalog-sync executable.
package main

import "github.com/JakeFAU/catalog-sync/cmd"

func main() {
	cmd.Execute()
}
