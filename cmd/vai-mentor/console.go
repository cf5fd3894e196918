package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/vango-go/vai-mentor/pkg/core/live"
	"github.com/vango-go/vai-mentor/pkg/core/mentor"
	"github.com/vango-go/vai-mentor/pkg/core/transcript"
	"github.com/vango-go/vai-mentor/pkg/gateway/handlers"
)

const consoleHelp = `commands:
  /start                 start a voice session
  /stop                  end the voice session
  /clear                 delete the voice transcript (idle only)
  /personality <id>      select the personality for the next session
  /personalities         list personalities
  /status                show the session state
  /history               show the voice transcript
  /chat <text>           ask the text mentor (plain lines do the same)
  /chat-history          show the text conversation
  /chat-clear            reset the text conversation
  /exit                  quit`

// console is the terminal front end: one command per line, status changes
// printed as they happen.
type console struct {
	voice handlers.Voice
	chat  handlers.Chat

	mu  sync.Mutex
	out io.Writer

	// starts tracks /start calls still connecting.
	starts sync.WaitGroup
}

func newConsole(voice handlers.Voice, chat handlers.Chat, out io.Writer) *console {
	if out == nil {
		out = io.Discard
	}
	return &console{voice: voice, chat: chat, out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// run reads commands until /exit, end of input, or ctx is done. On return
// the voice session is stopped and pending starts have finished.
func (c *console) run(ctx context.Context, in io.Reader) error {
	snaps, unsubscribe := c.voice.Subscribe()
	defer unsubscribe()
	defer func() {
		c.voice.Stop()
		c.starts.Wait()
	}()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	c.printf("vai-mentor ready. Type /help for commands.\n")
	lastStatus := ""
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case snap := <-snaps:
			if snap.Status != lastStatus {
				lastStatus = snap.Status
				c.printf("[%s] %s\n", snap.State, snap.Status)
			}
		case line := <-lines:
			if quit := c.exec(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

// exec runs one command line and reports whether the console should quit.
func (c *console) exec(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.ask(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(cmd) {
	case "/exit", "/quit":
		c.voice.Stop()
		return true
	case "/help":
		c.printf("%s\n", consoleHelp)
	case "/start":
		c.starts.Add(1)
		go func() {
			defer c.starts.Done()
			err := c.voice.Start(context.WithoutCancel(ctx))
			if err != nil && !errors.Is(err, live.ErrStartCancelled) {
				c.printf("start failed: %v\n", err)
			}
		}()
	case "/stop":
		c.voice.Stop()
	case "/clear":
		if !c.voice.ClearHistory(ctx) {
			c.printf("history can only be cleared while idle\n")
			return false
		}
		c.printf("voice transcript cleared\n")
	case "/personality":
		if arg == "" {
			c.printf("usage: /personality <id>\n")
			return false
		}
		if err := c.voice.SetPersonality(arg); err != nil {
			c.printf("%v\n", err)
			return false
		}
		c.printf("personality set to %s\n", arg)
	case "/personalities":
		selected := c.voice.Snapshot().Personality
		for _, p := range mentor.All() {
			marker := " "
			if p.ID == selected {
				marker = "*"
			}
			c.printf("%s %-13s %s\n", marker, p.ID, p.Name)
		}
	case "/status":
		snap := c.voice.Snapshot()
		c.printf("state=%s personality=%s status=%q turns=%d\n",
			snap.State, snap.Personality, snap.Status, len(snap.Transcript))
	case "/history":
		c.printTurns(c.voice.Snapshot().Transcript)
	case "/chat":
		c.ask(ctx, arg)
	case "/chat-history":
		if c.chatDisabled() {
			return false
		}
		c.printTurns(c.chat.Messages())
	case "/chat-clear":
		if c.chatDisabled() {
			return false
		}
		if err := c.chat.Clear(ctx); err != nil {
			c.printf("clear failed: %v\n", err)
			return false
		}
		c.printTurns(c.chat.Messages())
	default:
		c.printf("unknown command %s (try /help)\n", cmd)
	}
	return false
}

func (c *console) chatDisabled() bool {
	if c.chat == nil {
		c.printf("text chat is disabled\n")
		return true
	}
	return false
}

// ask streams a text mentor reply to the console.
func (c *console) ask(ctx context.Context, text string) {
	if c.chatDisabled() {
		return
	}
	c.printf("mentor: ")
	streamed := false
	reply, err := c.chat.Send(ctx, text, func(delta string) {
		streamed = true
		c.printf("%s", delta)
	})
	if !streamed && reply != "" {
		c.printf("%s", reply)
	}
	c.printf("\n")
	if err != nil && !errors.Is(err, context.Canceled) {
		c.printf("(chat error: %v)\n", err)
	}
}

func (c *console) printTurns(turns []transcript.Turn) {
	if len(turns) == 0 {
		c.printf("(empty)\n")
		return
	}
	for _, t := range turns {
		c.printf("%s: %s\n", t.Speaker, t.Text)
	}
}
