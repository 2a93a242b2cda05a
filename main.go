package main

import (
	"github.com/expki/go-imagesearch/cli"
	_ "github.com/expki/go-imagesearch/env"
)

func main() {
	cli.Execute()
}
