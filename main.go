package main

import (
	"github.com/variantdev/buildmatrix/cmd"
)

func main() {
	cmd.Execute()
}
