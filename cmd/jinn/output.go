package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"jinn/internal/store"
)

var (
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	gray   = color.New(color.FgHiBlack)
)

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printIncantation(w io.Writer, inc *store.Incantation) {
	cyan.Fprintf(w, "#%d %s", inc.ID, inc.Name)
	if inc.Public {
		gray.Fprint(w, " (public)")
	}
	fmt.Fprintln(w)
	if desc := inc.Schema.Description(); desc != "" {
		fmt.Fprintf(w, "  %s\n", desc)
	}
}

func printMishap(w io.Writer, m *store.Mishap, params []string) {
	yellow.Fprintf(w, "mishap #%d", m.ID)
	gray.Fprintf(w, " on incantation #%d at %s\n", m.IncantationID, m.CreatedAt.Format("2006-01-02 15:04:05"))
	args := m.Request
	if params != nil {
		args = m.FilteredRequest(params)
	}
	data, _ := json.Marshal(args)
	fmt.Fprintf(w, "  arguments: %s\n", data)
	for _, line := range strings.Split(strings.TrimSpace(m.Traceback), "\n") {
		fmt.Fprintf(w, "  | %s\n", line)
	}
}

func printResult(w io.Writer, result interface{}) {
	green.Fprint(w, "result: ")
	if s, ok := result.(string); ok {
		fmt.Fprintln(w, s)
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		fmt.Fprintln(w, result)
		return
	}
	fmt.Fprintln(w, string(data))
}

func printFailure(w io.Writer, err error) {
	red.Fprint(w, "failed: ")
	fmt.Fprintln(w, err)
}
