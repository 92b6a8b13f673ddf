package main

import "github.com/koscakluka/ema-phone/internal/cli"

func main() {
	cli.Execute()
}
