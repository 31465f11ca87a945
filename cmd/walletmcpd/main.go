package main

import (
	"os"
)

// main 是钱包网关守护进程的入口。
func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
