package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tinyrange/zgpio/internal/gpio"
	"github.com/tinyrange/zgpio/internal/ipc"
)

const usage = `commands:
  reset                 drive bank A to its direction value
  set <a|b> <value>     write a bank
  get <a|b>             read a bank
  gint <on|off>         global interrupt enable
  irq <a|b> <on|off>    per-bank interrupt enable
  watch                 print bank A on every input-ready event
  stats                 show channel counters
  shell                 interactive prompt`

var errUsage = errors.New("bad arguments")

// controller is the part of ipc.Client the commands use.
type controller interface {
	Reset() error
	SetBank(bank gpio.Bank, v uint32) error
	GetBank(bank gpio.Bank) (uint32, error)
	SetGlobalInterrupt(on bool) error
	SetBankInterruptEnable(bank gpio.Bank, on bool) error
	Stats() (ipc.Stats, error)
}

var _ controller = (*ipc.Client)(nil)

func execute(c controller, w io.Writer, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	switch strings.ToLower(args[0]) {
	case "reset":
		return c.Reset()

	case "set":
		if len(args) != 3 {
			return fmt.Errorf("%w: set <a|b> <value>", errUsage)
		}
		bank, err := parseBank(args[1])
		if err != nil {
			return err
		}
		v, err := parseValue(args[2])
		if err != nil {
			return err
		}
		return c.SetBank(bank, v)

	case "get":
		if len(args) != 2 {
			return fmt.Errorf("%w: get <a|b>", errUsage)
		}
		bank, err := parseBank(args[1])
		if err != nil {
			return err
		}
		v, err := c.GetBank(bank)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%#08x\n", v)
		return nil

	case "gint":
		if len(args) != 2 {
			return fmt.Errorf("%w: gint <on|off>", errUsage)
		}
		on, err := parseOnOff(args[1])
		if err != nil {
			return err
		}
		return c.SetGlobalInterrupt(on)

	case "irq":
		if len(args) != 3 {
			return fmt.Errorf("%w: irq <a|b> <on|off>", errUsage)
		}
		bank, err := parseBank(args[1])
		if err != nil {
			return err
		}
		on, err := parseOnOff(args[2])
		if err != nil {
			return err
		}
		return c.SetBankInterruptEnable(bank, on)

	case "stats":
		st, err := c.Stats()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "executed:   %d\nrejected:   %d\nsubscribed: %v\n", st.Executed, st.Rejected, st.Subscribed)
		return nil

	case "help", "?":
		fmt.Fprintln(w, usage)
		return nil

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func parseBank(s string) (gpio.Bank, error) {
	switch strings.ToLower(s) {
	case "a", "1":
		return gpio.BankA, nil
	case "b", "2":
		return gpio.BankB, nil
	default:
		return 0, fmt.Errorf("%w: bank %q", errUsage, s)
	}
}

func parseValue(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: value %q", errUsage, s)
	}
	return uint32(v), nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true", "enable":
		return true, nil
	case "off", "0", "false", "disable":
		return false, nil
	default:
		return false, fmt.Errorf("%w: expected on or off, got %q", errUsage, s)
	}
}
