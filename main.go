package main

import "github.com/mgost/mgost/cmd"

func main() {
	cmd.Execute()
}
