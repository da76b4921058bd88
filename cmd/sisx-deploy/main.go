package main

import "github.com/oshokin/sisx-deploy/cmd/sisx-deploy/cmd"

func main() {
	cmd.Execute()
}
