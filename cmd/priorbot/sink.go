package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/adbnode/prior-auto/internal/botcore"
)

// terminalSink renders campaign events and wallet tables on stdout with
// severity colors.
type terminalSink struct {
	info    *color.Color
	success *color.Color
	wait    *color.Color
	fail    *color.Color
}

func newTerminalSink() *terminalSink {
	return &terminalSink{
		info:    color.New(color.FgCyan),
		success: color.New(color.FgGreen),
		wait:    color.New(color.FgYellow),
		fail:    color.New(color.FgRed),
	}
}

func (s *terminalSink) Event(ev botcore.LogEvent) {
	c := s.info
	switch ev.Sev {
	case botcore.SevSuccess:
		c = s.success
	case botcore.SevWait:
		c = s.wait
	case botcore.SevError:
		c = s.fail
	}
	c.Printf("[%s] %s\n", ev.Time.Format("15:04:05"), ev.Msg)
}

func (s *terminalSink) Wallets(snaps []botcore.Snapshot) {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tADDRESS\tETH\tPRIOR\tUSDC")
	for i, sn := range snaps {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i, sn.Address, sn.ETH, sn.Prior, sn.USDC)
	}
	w.Flush()
}

func (s *terminalSink) RunState(st botcore.State) {
	s.wait.Printf("-- campaign %s --\n", st)
}
