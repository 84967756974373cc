package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/tinyrange/zgpio/internal/gpio"
	"github.com/tinyrange/zgpio/internal/ipc"
)

type fakeController struct {
	calls []string
	banks [2]uint32
}

func (f *fakeController) Reset() error {
	f.calls = append(f.calls, "reset")
	return nil
}

func (f *fakeController) SetBank(bank gpio.Bank, v uint32) error {
	f.calls = append(f.calls, "set "+bank.String())
	f.banks[bank] = v
	return nil
}

func (f *fakeController) GetBank(bank gpio.Bank) (uint32, error) {
	f.calls = append(f.calls, "get "+bank.String())
	return f.banks[bank], nil
}

func (f *fakeController) SetGlobalInterrupt(on bool) error {
	if on {
		f.calls = append(f.calls, "gint on")
	} else {
		f.calls = append(f.calls, "gint off")
	}
	return nil
}

func (f *fakeController) SetBankInterruptEnable(bank gpio.Bank, on bool) error {
	if on {
		f.calls = append(f.calls, "irq "+bank.String()+" on")
	} else {
		f.calls = append(f.calls, "irq "+bank.String()+" off")
	}
	return nil
}

func (f *fakeController) Stats() (ipc.Stats, error) {
	return ipc.Stats{Executed: 4, Rejected: 1, Subscribed: true}, nil
}

func TestExecute(t *testing.T) {
	f := &fakeController{}
	var out bytes.Buffer

	for _, args := range [][]string{
		{"reset"},
		{"set", "a", "0xffff"},
		{"set", "B", "42"},
		{"get", "a"},
		{"gint", "on"},
		{"irq", "b", "off"},
	} {
		if err := execute(f, &out, args); err != nil {
			t.Fatalf("execute %v: %v", args, err)
		}
	}

	want := []string{"reset", "set " + gpio.BankA.String(), "set " + gpio.BankB.String(), "get " + gpio.BankA.String(), "gint on", "irq " + gpio.BankB.String() + " off"}
	if strings.Join(f.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls: got %v, want %v", f.calls, want)
	}
	if f.banks[gpio.BankA] != 0xffff || f.banks[gpio.BankB] != 42 {
		t.Fatalf("banks: got %#x/%#x", f.banks[gpio.BankA], f.banks[gpio.BankB])
	}
	if got := out.String(); got != "0x00ffff\n" {
		t.Fatalf("get output: got %q", got)
	}

	out.Reset()
	if err := execute(f, &out, []string{"stats"}); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out.String(), "executed:   4") {
		t.Fatalf("stats output: %q", out.String())
	}
}

func TestExecuteRejectsBadArguments(t *testing.T) {
	f := &fakeController{}
	for _, args := range [][]string{
		{},
		{"set", "a"},
		{"set", "c", "1"},
		{"set", "a", "0x1ffffffff"},
		{"get", "x"},
		{"gint", "maybe"},
		{"irq", "a"},
		{"frobnicate"},
	} {
		if err := execute(f, &bytes.Buffer{}, args); !errors.Is(err, errUsage) {
			t.Fatalf("execute %v: got %v, want usage error", args, err)
		}
	}
	if len(f.calls) != 0 {
		t.Fatalf("controller called on bad input: %v", f.calls)
	}
}

func TestRunScript(t *testing.T) {
	f := &fakeController{}
	var out bytes.Buffer
	script := `
# configure outputs
set b 0x80000001
get b   # read back

gint off
`
	if err := runScript(f, strings.NewReader(script), &out); err != nil {
		t.Fatalf("runScript: %v", err)
	}
	if got := out.String(); got != "0x80000001\n" {
		t.Fatalf("output: got %q", got)
	}

	err := runScript(f, strings.NewReader("reset\nbogus\n"), &out)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("bad script: got %v", err)
	}
}
