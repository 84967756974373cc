package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"golang.org/x/term"

	"github.com/tinyrange/zgpio/internal/gpio"
	"github.com/tinyrange/zgpio/internal/ipc"
)

// runShell reads commands from in. A terminal gets a readline prompt;
// anything else is read as a script, one command per line.
func runShell(c *ipc.Client, in *os.File, out io.Writer) error {
	if !term.IsTerminal(int(in.Fd())) {
		return runScript(c, in, out)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "zgpio> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return nil
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "quit", "exit", "q":
			return nil
		case "watch":
			fmt.Fprintln(rl.Stderr(), "watch is not available in the shell")
			continue
		}

		if err := execute(c, rl.Stdout(), fields); err != nil {
			fmt.Fprintf(rl.Stderr(), "error: %v\n", err)
		}
	}
}

func runScript(c controller, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if err := execute(c, out, fields); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return sc.Err()
}

// watch subscribes to input-ready events and prints bank A after each one
// until stop is closed or the channel goes away.
func watch(c *ipc.Client, out io.Writer, stop <-chan struct{}) error {
	if err := c.Subscribe(); err != nil {
		return err
	}
	for {
		select {
		case <-stop:
			return c.Unsubscribe()
		case _, ok := <-c.Notifications():
			if !ok {
				return fmt.Errorf("control channel closed")
			}
			v, err := c.GetBank(gpio.BankA)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "input ready: bank A = %#08x\n", v)
		}
	}
}
