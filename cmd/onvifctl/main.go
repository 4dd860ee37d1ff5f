package main

import "github.com/SridarDhandapani/onvifstream/internal/cli"

func main() {
	cli.Execute()
}
