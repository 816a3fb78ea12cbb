package main

import "github.com/nfrund/classhub/cmd/classhub/cmd"

func main() {
	cmd.Execute()
}
