package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dukerupert/bidwatch/internal/config"
	"github.com/dukerupert/bidwatch/internal/database"
	"github.com/dukerupert/bidwatch/internal/httpclient"
	"github.com/dukerupert/bidwatch/internal/logging"
	"github.com/dukerupert/bidwatch/internal/marketplace"
	"github.com/dukerupert/bidwatch/internal/notify"
	"github.com/dukerupert/bidwatch/internal/push"
	"github.com/dukerupert/bidwatch/internal/session"
	"github.com/dukerupert/bidwatch/internal/store"
	"github.com/dukerupert/bidwatch/internal/tokenstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, a := newRootCmd()
	err := root.ExecuteContext(ctx)
	a.close()
	if err != nil {
		msg := err.Error()
		if httpclient.StatusOf(err) != 0 {
			msg = httpclient.UserMessage(err)
		}
		fmt.Fprintln(os.Stderr, "error:", msg)
		os.Exit(1)
	}
}

// app holds the wired client stack shared by every command.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	out    io.Writer

	db       *sql.DB
	tokens   *tokenstore.Store
	api      *marketplace.Client
	session  *session.Controller
	pushes   *store.PushStore
	pusher   *push.Notifier
	notifier notify.Notifier
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:           "bidwatch",
		Short:         "Follow and bid on marketplace auctions from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
	}
	config.BindFlags(root)

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newRegisterCmd(a),
		newVerifyOTPCmd(a),
		newAuctionsCmd(a),
		newWatchCmd(a),
		newBidCmd(a),
		newNotificationsCmd(a),
		newDepositCmd(a),
		newVAPIDKeysCmd(),
		newPushCmd(a),
	)
	return root, a
}

func (a *app) open(cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	cfg.ApplyFlags(cmd)
	a.cfg = cfg
	a.out = &lockedWriter{w: cmd.OutOrStdout()}
	a.logger = logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	a.db = db

	state := store.NewStateStore(db)
	if cfg.StatePassphrase != "" {
		state = state.WithSealer(store.NewSealer(cfg.StatePassphrase))
	}
	a.tokens = tokenstore.New(state, a.logger)
	a.pushes = store.NewPushStore(db)

	hc := httpclient.New(cfg.BaseURL,
		httpclient.WithHTTPClient(&http.Client{
			Timeout:   cfg.HTTPTimeout,
			Transport: httpclient.LoggingTransport(nil, a.logger),
		}),
		httpclient.WithLogger(a.logger),
	)
	a.api = marketplace.New(hc)
	a.session = session.New(a.api, a.tokens, a.logger)
	hc.SetTokenSource(a.session.AccessToken)
	hc.SetRefresher(a.session.Refresh)

	notifiers := notify.Multi{notify.NewLog(a.logger), consoleNotifier(a.out)}
	pushCfg := push.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subscriber:      cfg.VAPIDSubscriber,
	}
	if pushCfg.Enabled() {
		a.pusher = push.NewNotifier(push.NewService(pushCfg, nil), a.pushes, a.logger)
		notifiers = append(notifiers, a.pusher)
	}
	a.notifier = notifiers

	a.logger.Debug("bidwatch ready", "api", cfg.BaseURL, "state", cfg.StatePath, "push", pushCfg.Enabled())
	return nil
}

func (a *app) close() {
	if a.pusher != nil {
		a.pusher.Wait()
	}
	if a.session != nil {
		a.session.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// restore brings back a persisted session and fails when there is none.
func (a *app) restore(ctx context.Context) error {
	if err := a.session.Restore(ctx); err != nil {
		return err
	}
	if a.session.State() != session.StateAuthed {
		return fmt.Errorf("not signed in, run bidwatch login first")
	}
	return nil
}

// lockedWriter serializes output from socket goroutines and the command.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func consoleNotifier(w io.Writer) notify.Notifier {
	return notify.Func(func(n notify.Notice) {
		if n.Title != "" {
			fmt.Fprintf(w, "[%s] %s: %s\n", n.Level, n.Title, n.Message)
			return
		}
		fmt.Fprintf(w, "[%s] %s\n", n.Level, n.Message)
	})
}
