package main

import "github.com/docfiscal/nfscan/cmd/nfscan/cmd"

func main() {
	cmd.Execute()
}
