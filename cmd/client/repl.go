package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/omochice/relay-chat/internal/session"
	"github.com/omochice/relay-chat/pkg/protocol"
)

const helpText = `Commands:
  /private <id>   send private messages to user <id>
  /group <id>     send group messages to group <id>
  /to <id>        change the target, keep the mode
  /status         show the connection status
  /log            print the whole chat log
  /quit           leave
Anything else is sent as a message.`

// repl turns input lines into session operations.
type repl struct {
	sess        *session.Controller
	out         io.Writer
	sendTimeout time.Duration
}

// prompt shows where the next message goes.
func (r *repl) prompt() string {
	d := r.sess.Draft()
	if d.Target == "" {
		return fmt.Sprintf("[%s] > ", d.Mode)
	}
	return fmt.Sprintf("[%s %s] > ", d.Mode, d.Target)
}

// handleLine runs one input line and reports whether the user asked to quit.
func (r *repl) handleLine(ctx context.Context, line string) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if !strings.HasPrefix(line, "/") {
		r.sess.SetDraft(line)
		sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
		defer cancel()
		r.sess.SubmitDraft(sendCtx)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/private", "/group":
		mode, _ := protocol.ParseChatMode(strings.TrimPrefix(cmd, "/"))
		r.sess.SetMode(mode)
		if arg != "" {
			r.sess.SetTarget(arg)
		}
	case "/to":
		if arg == "" {
			fmt.Fprintln(r.out, "usage: /to <id>")
			return false
		}
		r.sess.SetTarget(arg)
	case "/status":
		fmt.Fprintf(r.out, "Connection status: %s\n", r.sess.Status())
	case "/log":
		for _, e := range r.sess.Log().Entries() {
			fmt.Fprintln(r.out, e.String())
		}
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, helpText)
	default:
		fmt.Fprintf(r.out, "unknown command %s (try /help)\n", cmd)
	}
	return false
}

func printNotice(out io.Writer, n session.Notice) {
	fmt.Fprintf(out, "! %s\n", n.Message)
}
