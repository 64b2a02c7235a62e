// Command blogctl signs in to the blog auth service and keeps the session on disk.
//
//	blogctl [-server URL] [-store PATH] <command> [flags]
//
// Commands: login, register, me, refresh, logout, can, role.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prperemyshlev/blog-auth-service/internal/client"
	"github.com/prperemyshlev/blog-auth-service/internal/domain"
	"github.com/prperemyshlev/blog-auth-service/internal/dto"
	"github.com/prperemyshlev/blog-auth-service/internal/guard"
	"go.uber.org/zap"
)

const usage = `usage: blogctl [-server URL] [-store PATH] [-v] <command> [flags]

commands:
  login    -email E -password P       sign in and save the session
  register -username U -fullname F -email E -password P
  me                                  show the signed-in user
  refresh                             renew the session
  logout                              revoke the session and forget it
  can      <role> <path>              evaluate route guards for path
  role     <user-id> <role>           change a user's role (admin only)
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "blogctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("blogctl", flag.ContinueOnError)
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	server := global.String("server", envOr("BLOGCTL_SERVER", "http://localhost:8080"), "auth service base URL")
	storePath := global.String("store", defaultStorePath(), "credentials file")
	verbose := global.Bool("v", false, "log transport activity")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return flag.ErrHelp
	}

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		logger = l
		defer func() { _ = logger.Sync() }()
	}

	store := client.NewFileStore(*storePath)
	if err := store.Init(); err != nil {
		logger.Warn("ignoring unreadable credentials", zap.Error(err))
		if err := store.Clear(); err != nil {
			return err
		}
	}

	c := client.New(*server, store, client.WithLogger(logger))
	cmd, cmdArgs := global.Arg(0), global.Args()[1:]

	switch cmd {
	case "login":
		return login(ctx, c, cmdArgs, out)
	case "register":
		return register(ctx, c, cmdArgs, out)
	case "me":
		user, err := c.Me(ctx)
		if err != nil {
			return explain(err)
		}
		return printJSON(out, user)
	case "refresh":
		data, err := c.Refresh(ctx)
		if err != nil {
			return explain(err)
		}
		fmt.Fprintf(out, "session renewed, access token valid for %ds\n", data.ExpiresIn)
		return nil
	case "logout":
		if err := c.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "signed out")
		return nil
	case "can":
		return can(store, cmdArgs, out)
	case "role":
		return changeRole(ctx, c, cmdArgs, out)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func login(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("BLOGCTL_PASSWORD"), "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("login requires -email and -password")
	}

	data, err := c.Login(ctx, *email, *password)
	if err != nil {
		return explain(err)
	}
	fmt.Fprintf(out, "signed in as %s (%s)\n", data.User.Username, data.User.Role)
	return nil
}

func register(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	var req dto.RegisterRequest
	fs.StringVar(&req.Username, "username", "", "username")
	fs.StringVar(&req.Fullname, "fullname", "", "full name")
	fs.StringVar(&req.Email, "email", "", "email")
	fs.StringVar(&req.Password, "password", os.Getenv("BLOGCTL_PASSWORD"), "password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := c.Register(ctx, req)
	if err != nil {
		return explain(err)
	}
	if data.AccessToken != "" {
		fmt.Fprintf(out, "registered and signed in as %s\n", data.User.Username)
		return nil
	}
	fmt.Fprintf(out, "registered %s, run blogctl login to sign in\n", data.User.Username)
	return nil
}

func can(source guard.TokenSource, args []string, out io.Writer) error {
	if len(args) != 2 {
		return errors.New("usage: blogctl can <role> <path>")
	}
	role, err := domain.ParseRole(args[0])
	if err != nil {
		return err
	}

	d := guard.New(source, guard.Options{}).RoleGuard(role)(args[1])
	if d.Allowed {
		fmt.Fprintln(out, "allowed")
		return nil
	}
	fmt.Fprintf(out, "denied, redirect to %s\n", d.RedirectTo)
	return nil
}

func changeRole(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	if len(args) != 2 {
		return errors.New("usage: blogctl role <user-id> <role>")
	}
	role, err := domain.ParseRole(args[1])
	if err != nil {
		return err
	}

	user, err := c.ChangeRole(ctx, args[0], role)
	if err != nil {
		return explain(err)
	}
	return printJSON(out, user)
}

func explain(err error) error {
	if errors.Is(err, client.ErrSessionExpired) {
		return errors.New("session expired, run blogctl login")
	}
	return err
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func defaultStorePath() string {
	if p := os.Getenv("BLOGCTL_STORE"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".blogctl-credentials.json"
	}
	return filepath.Join(home, ".blogctl", "credentials.json")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
