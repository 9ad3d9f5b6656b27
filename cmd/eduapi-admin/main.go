// Package main is the entry point for the eduapi-admin CLI tool.
//
// eduapi-admin manages accounts and runs publishing jobs against an eduapi
// data directory. Stop the server before running commands that write.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/invopop/jsonschema"
	"github.com/lmittmann/tint"
	"github.com/maruel/eduapi/internal/drafts"
	"github.com/maruel/eduapi/internal/jsonldb"
	"github.com/maruel/eduapi/internal/publish"
	"github.com/maruel/eduapi/internal/server/dto"
	"github.com/maruel/eduapi/internal/storage"
	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/eduapi/internal/storage/identity"
	"github.com/maruel/ksid"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

const usage = `usage: eduapi-admin [-data-dir dir] <command> [flags]

commands:
  user-add  -email e -name n [-reviewer] [-superuser]
  delegate  -owner email -delegate email
  token     -email e [-ttl 24h]
  review    [-limit 20]
  sweep
  schema
`

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "eduapi-admin: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dataDir := flag.String("data-dir", "./data", "Data directory")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		return errors.New("missing command")
	}
	slog.SetDefault(slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "user-add":
		return cmdUserAdd(*dataDir, args)
	case "delegate":
		return cmdDelegate(*dataDir, args)
	case "token":
		return cmdToken(*dataDir, args)
	case "review":
		return cmdReview(*dataDir, args)
	case "sweep":
		return cmdSweep(ctx, *dataDir)
	case "schema":
		return cmdSchema()
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func openUsers(dataDir string) (*identity.UserService, error) {
	dbDir := filepath.Join(dataDir, "db")
	if err := os.MkdirAll(dbDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, err
	}
	return identity.NewUserService(filepath.Join(dbDir, "users.jsonl"))
}

// openMachine opens the content store with a machine that sends no
// notifications.
func openMachine(dataDir string) (*publish.Machine, error) {
	users, err := openUsers(dataDir)
	if err != nil {
		return nil, err
	}
	apps, err := content.LoadApps(dataDir)
	if err != nil {
		return nil, err
	}
	db, err := jsonldb.OpenDB(filepath.Join(dataDir, "content"))
	if err != nil {
		return nil, err
	}
	cs, err := content.OpenStore(db, apps)
	if err != nil {
		return nil, err
	}
	return publish.NewMachine(drafts.New(cs), identity.NewPermissions(users), publish.Discard), nil
}

func cmdUserAdd(dataDir string, args []string) error {
	fs := flag.NewFlagSet("user-add", flag.ExitOnError)
	mail := fs.String("email", "", "Email address (required)")
	name := fs.String("name", "", "Display name")
	reviewer := fs.Bool("reviewer", false, "Staff reviewer allowed to publish")
	superuser := fs.Bool("superuser", false, "Full access to every project")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *mail == "" {
		return errors.New("-email is required")
	}
	users, err := openUsers(dataDir)
	if err != nil {
		return err
	}
	u, err := users.Create(*mail, *name)
	if err != nil {
		return err
	}
	if *reviewer || *superuser {
		if u, err = users.Modify(u.ID, func(u *identity.User) error {
			u.Reviewer = *reviewer
			u.Superuser = *superuser
			return nil
		}); err != nil {
			return err
		}
	}
	fmt.Println(u.ID)
	return nil
}

func cmdDelegate(dataDir string, args []string) error {
	fs := flag.NewFlagSet("delegate", flag.ExitOnError)
	owner := fs.String("owner", "", "Email of the author (required)")
	delegate := fs.String("delegate", "", "Email of the user allowed to edit the author's projects (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *owner == "" || *delegate == "" {
		return errors.New("-owner and -delegate are required")
	}
	users, err := openUsers(dataDir)
	if err != nil {
		return err
	}
	o, err := users.GetByEmail(*owner)
	if err != nil {
		return fmt.Errorf("%s: %w", *owner, err)
	}
	d, err := users.GetByEmail(*delegate)
	if err != nil {
		return fmt.Errorf("%s: %w", *delegate, err)
	}
	return users.AddDelegate(o.ID, d.ID)
}

func cmdToken(dataDir string, args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	mail := fs.String("email", "", "Email of the user (required)")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *mail == "" {
		return errors.New("-email is required")
	}
	cfg, err := storage.LoadServerConfig(dataDir)
	if err != nil {
		return err
	}
	users, err := openUsers(dataDir)
	if err != nil {
		return err
	}
	u, err := users.GetByEmail(*mail)
	if err != nil {
		return fmt.Errorf("%s: %w", *mail, err)
	}
	tok, err := mintToken(cfg.JWTSecret, u.ID, time.Now(), *ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

// mintToken returns an HS256 token for user, as accepted by the server.
func mintToken(secret []byte, user ksid.ID, now time.Time, ttl time.Duration) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": user.String(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}).SignedString(secret)
}

func cmdReview(dataDir string, args []string) error {
	fs := flag.NewFlagSet("review", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum number of projects listed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	m, err := openMachine(dataDir)
	if err != nil {
		return err
	}
	q := m.InReview(*limit)
	fmt.Printf("%d project(s) in review\n", q.Total)
	for _, p := range q.Last {
		fmt.Printf("  %s  %s  %s\n", p.ID, p.Updated.AsTime().Format(time.DateTime), p.Title)
	}
	return nil
}

func cmdSweep(ctx context.Context, dataDir string) error {
	m, err := openMachine(dataDir)
	if err != nil {
		return err
	}
	n, err := m.PublishDue(ctx)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Sweep done", "published", n)
	return nil
}

// cmdSchema prints the JSON schema of the API project and draft views.
func cmdSchema() error {
	r := jsonschema.Reflector{ExpandedStruct: true}
	out := map[string]*jsonschema.Schema{
		"project":      r.Reflect(&dto.ProjectDTO{}),
		"draft":        r.Reflect(&dto.DraftView{}),
		"notification": r.Reflect(&dto.NotificationDTO{}),
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(b, '\n'))
	return err
}
