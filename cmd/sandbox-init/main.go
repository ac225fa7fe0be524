// Command sandbox-init is the helper process started by the sandbox engine for every execution.
package main

import "github.com/Majnu04/doflow-sub001/internal/judge/sandbox/initproc"

func main() {
	initproc.Main()
}
