package main

import "github.com/tamshai/gateway/cmd/tamshai-gateway/cmd"

func main() {
	cmd.Execute()
}
