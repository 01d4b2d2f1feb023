package main

import "github.com/devicelab-dev/flutter-integration-driver/pkg/cli"

func main() {
	cli.Execute()
}
