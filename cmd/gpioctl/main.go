// gpioctl drives a zgpio control channel from the command line.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/tinyrange/zgpio/internal/ipc"
)

func main() {
	socket := flag.String("socket", filepath.Join(ipc.DefaultSocketDir(), ipc.SocketName(0)), "control channel socket")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: gpioctl [-socket path] <command> [args]\n\n%s\nflags:\n", usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*socket, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "gpioctl: %v\n", err)
		os.Exit(1)
	}
}

func run(socket string, args []string) error {
	c, err := ipc.Dial(socket)
	if err != nil {
		return err
	}
	defer c.Close()

	switch args[0] {
	case "shell":
		return runShell(c, os.Stdin, os.Stdout)
	case "watch":
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt)
		defer signal.Stop(sigCh)

		stop := make(chan struct{})
		go func() {
			<-sigCh
			close(stop)
		}()
		return watch(c, os.Stdout, stop)
	default:
		return execute(c, os.Stdout, args)
	}
}
