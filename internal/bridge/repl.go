package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Caller is the part of a Session the REPL drives.
type Caller interface {
	Tools() []mcp.Tool
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// RunREPL reads one command per line from in and writes results to out.
//
//	<tool> [json-object]   call a tool
//	tools                  list the discovered tools
//	quit | exit            stop
//
// It returns nil at EOF or quit, and ErrClosed once the session is gone.
// Bad input and call errors are reported and the loop goes on.
func RunREPL(ctx context.Context, caller Caller, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		name, rest, _ := strings.Cut(line, " ")

		switch name {
		case "quit", "exit":
			return nil
		case "tools":
			for _, t := range caller.Tools() {
				fmt.Fprintf(out, "%-18s %s\n", t.Name, t.Description)
			}
			continue
		}

		args, err := ParseArgs(rest)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		text, err := caller.CallTool(ctx, name, args)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			if errors.Is(err, ErrClosed) {
				return err
			}
			continue
		}
		fmt.Fprintln(out, text)
	}
}

// ParseArgs decodes a tool argument object. Blank input means no arguments.
// Numbers stay json.Number so they are sent exactly as typed.
func ParseArgs(s string) (map[string]any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("arguments must be a single JSON object")
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
