// Command crsfctl 通过参数协议扫描、读取、修改与执行总线设备参数
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
)

// command 一个子命令
type command struct {
	usage string
	run   func(args []string, out io.Writer) error
}

var commands = map[string]command{
	"scan":  {"scan [-config file]                        列出总线上的设备", runScan},
	"dump":  {"dump -addr 0xEE [-format yaml|json]        导出设备全部参数", runDump},
	"set":   {"set -addr 0xEE -param N -value V           写入参数", runSet},
	"exec":  {"exec -addr 0xEE -param N [-yes]            执行命令参数", runExec},
	"ports": {"ports                                      列出本机串口", runPorts},
	"serve": {"serve [-config file]                       启动 HTTP API", runServe},
	"watch": {"watch [-n N] [-kind K]                     订阅 Redis 事件频道", runWatch},
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "crsfctl:", err)
		}
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return flag.ErrHelp
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd.run(args[1:], out)
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "usage: crsfctl <command> [flags]")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(out, "  "+commands[name].usage)
	}
}
