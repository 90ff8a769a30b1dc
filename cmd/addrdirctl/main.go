// Package main 提供地址目录的管理命令行入口。
package main

import (
	"fmt"
	"os"

	"addrdir/backend/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
