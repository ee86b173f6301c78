// cmd/gpgbridge/main.go
// Entrypoint for the `gpgbridge` multi-tool CLI binary. The file is
// intentionally tiny: it delegates all logic to the root command defined in
// root.go.
//go:build cli
// +build cli

package main

func main() {
	Execute()
}
