package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/MiaMao0615/AR-Accompanied/internal/dispatcher"
	"github.com/MiaMao0615/AR-Accompanied/internal/util"
)

// readCommands dispatches one "COMMAND|arg|arg" line at a time until r is
// exhausted or ctx is cancelled. Every reply is written to out as
// "COMMAND|result" or "COMMAND|error|message".
func readCommands(ctx context.Context, r io.Reader, d *dispatcher.Dispatcher, out io.Writer) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		cmd, args := util.SplitLine(sc.Text())
		if cmd == "" {
			continue
		}
		res, err := d.Dispatch(dispatcher.Event{Command: cmd, Args: args})
		if err != nil {
			fmt.Fprintf(out, "%s%serror%s%v\n", cmd, util.ArgSeparator, util.ArgSeparator, err)
			continue
		}
		fmt.Fprintf(out, "%s%s%s\n", cmd, util.ArgSeparator, formatResult(res))
	}
	return sc.Err()
}

func formatResult(res any) string {
	switch v := res.(type) {
	case nil:
		return "ok"
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
