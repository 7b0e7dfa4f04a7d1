package main

import (
	"os"

	"go-ocr-throughput/cmd/ocrbench/commands"
	"go-ocr-throughput/internal/ecode"
	_ "go-ocr-throughput/internal/engine/tesseract"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(max(ecode.ExitCode(err), 1))
	}
}
