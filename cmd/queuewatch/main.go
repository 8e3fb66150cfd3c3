// queuewatch - terminal view of the active contract queue.
//
// Commands on stdin:
//
//	done <id>   mark a contract as signed
//	drop <id>   remove a contract from the queue
//	refresh     reload now
//	quit        exit
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"

	"github.com/contractqueue/backend/internal/client"
	"github.com/contractqueue/backend/internal/config"
	"github.com/contractqueue/backend/internal/logging"
	"github.com/contractqueue/backend/internal/queue"
)

const streamRetryDelay = 3 * time.Second

func main() {
	logging.Init()
	if err := run(); err != nil {
		slog.Error("queuewatch stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.NewContractsClient(os.Getenv("QUEUE_API_URL"))
	if err := api.Login(ctx, os.Getenv("QUEUE_USERNAME"), os.Getenv("QUEUE_PASSWORD")); err != nil {
		return err
	}

	view := queue.NewView(api, func(s queue.Snapshot) { render(os.Stdout, s) })
	signals := make(chan struct{}, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		view.Run(gctx, cfg.Queue.RefreshInterval, signals)
		return nil
	})
	g.Go(func() error {
		for {
			err := api.Stream(gctx, signals)
			if gctx.Err() != nil {
				return nil
			}
			slog.WarnContext(gctx, "event stream closed, reconnecting", "error", err)
			select {
			case <-gctx.Done():
				return nil
			case <-time.After(streamRetryDelay):
			}
		}
	})
	g.Go(func() error {
		defer stop()
		return readCommands(gctx, os.Stdin, view)
	})

	return g.Wait()
}

// readCommands runs stdin commands until quit, EOF, or ctx is done
func readCommands(ctx context.Context, r io.Reader, view *queue.View) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := execute(ctx, view, line); quit {
				return nil
			}
		}
	}
}

func execute(ctx context.Context, view *queue.View, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "quit", "exit":
		return true
	case "refresh":
		if err := view.Refresh(ctx); err != nil && !errors.Is(err, queue.ErrRefreshInFlight) {
			fmt.Fprintln(os.Stderr, err)
		}
	case "done", "drop":
		if len(fields) != 2 {
			fmt.Fprintf(os.Stderr, "usage: %s <id>\n", fields[0])
			return false
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || id <= 0 {
			fmt.Fprintf(os.Stderr, "invalid id %q\n", fields[1])
			return false
		}
		// actions run in the background so the prompt stays responsive
		go func() {
			action := view.Complete
			if fields[0] == "drop" {
				action = view.Remove
			}
			if err := action(ctx, id); errors.Is(err, queue.ErrProcessing) || errors.Is(err, queue.ErrNotVisible) {
				fmt.Fprintf(os.Stderr, "%d: %v\n", id, err)
			}
		}()
	default:
		fmt.Fprintln(os.Stderr, "commands: done <id> | drop <id> | refresh | quit")
	}
	return false
}

func render(w io.Writer, s queue.Snapshot) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n== contract queue (%d) updated %s ==\n", len(s.Items), s.UpdatedAt.Format("15:04:05"))
	for _, item := range s.Items {
		c := item.Contract
		state := ""
		if item.Processing {
			state = " [processing]"
		}
		fmt.Fprintf(&b, "%-10d %-32.32s %-20.20s %-16.16s %s %.2f%s\n",
			c.ID, c.Title, c.CustomerName, c.SalespersonName, c.Currency, c.Value, state)
	}
	if s.Notice != "" {
		fmt.Fprintf(&b, "! %s\n", s.Notice)
	}
	_, _ = io.WriteString(w, b.String())
}
