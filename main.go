package main

import "github.com/danandika/civic-report/cmd"

func main() {
	cmd.Execute()
}
