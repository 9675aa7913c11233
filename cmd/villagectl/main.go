// Command villagectl is a CLI client for the village game.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/status"

	"github.com/and161185/villagekeeper/internal/client"
	"github.com/and161185/villagekeeper/internal/config"
	"github.com/and161185/villagekeeper/internal/derive"
	"github.com/and161185/villagekeeper/internal/errs"
	"github.com/and161185/villagekeeper/internal/model"
	"github.com/and161185/villagekeeper/internal/service"
	"github.com/and161185/villagekeeper/internal/session"
)

func usage() {
	fmt.Fprintf(os.Stderr, `villagectl
Usage:
  villagectl [-addr HOST:PORT] [-relay HOST:PORT] [-ws URL] [-cacert file | -insecure | -plaintext] <cmd> [args]

Commands:
  version
  login         -address <0x..> [-key <jwt key>] [-ttl 24h]   (saves session)
  logout
  status                                                 (derived village state)
  players       [-limit 20]
  battles       [-limit 20]
  spawn         -name <username>
  collect
  place         -type <BuildingType> -x <col> -y <row>
  upgrade       -id <building>
  finish        -id <building>
  move          -id <building> -x <col> -y <row>
  train-worker
  finish-worker
  train         -troop <TroopType> [-qty 1] [-barracks <id>]
  raid          -target <0x..> [-deploy "Barbarian@0,5 Archer@39,2"] [-end]
  watch                                                  (streams snapshots until ^C)
`)
	os.Exit(2)
}

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against a client connected to the saved wallet.
func main() {
	fs := flag.NewFlagSet("villagectl", flag.ExitOnError)
	fs.Usage = usage
	verbose := fs.Bool("v", false, "log to stderr")
	cfg, args, err := config.ParseClient(fs, os.Args[1:])
	if err != nil {
		fail(err)
	}
	if len(args) < 1 {
		usage()
	}
	cmd, rest := args[0], args[1:]

	log := zap.NewNop()
	if *verbose {
		log, _ = zap.NewDevelopment()
	}
	defer func() { _ = log.Sync() }()

	switch cmd {
	case "version":
		fmt.Printf("villagectl %s (%s)\n", version, buildDate)
		return
	case "login":
		cmdLogin(rest)
		return
	case "logout":
		if err := dropSession(); err != nil {
			fail(err)
		}
		fmt.Println("ok")
		return
	}

	sess, err := loadSession()
	if err != nil {
		fail(err)
	}

	base := context.Background()
	if cmd == "watch" {
		var stop context.CancelFunc
		base, stop = signal.NotifyContext(base, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
	}

	c, cs, err := open(cfg, sess, log)
	if err != nil {
		fail(err)
	}
	defer cs.Close()
	defer c.Close()

	ctx, cancel := context.WithTimeout(base, cfg.Timeout)
	defer cancel()
	if cmd == "watch" {
		// the subscription lives on base, not on the per-command deadline
		ctx = base
	}
	if err := c.Connect(ctx, sess.Address); err != nil {
		fail(err)
	}

	if err := run(ctx, c, cmd, rest); err != nil {
		fail(err)
	}
}

func run(ctx context.Context, c *client.Client, cmd string, args []string) error {
	switch cmd {
	case "status":
		printJSON(c.Snapshot())

	case "players":
		fs := flag.NewFlagSet("players", flag.ExitOnError)
		limit := fs.Int("limit", 20, "max players")
		_ = fs.Parse(args)
		ps, err := c.Leaderboard(ctx, *limit)
		if err != nil {
			return err
		}
		printJSON(ps)

	case "battles":
		fs := flag.NewFlagSet("battles", flag.ExitOnError)
		limit := fs.Int("limit", 20, "max battles")
		_ = fs.Parse(args)
		bs, err := c.History(ctx, *limit)
		if err != nil {
			return err
		}
		printJSON(bs)

	case "spawn":
		fs := flag.NewFlagSet("spawn", flag.ExitOnError)
		name := fs.String("name", "", "username")
		_ = fs.Parse(args)
		return report(c.Players.Spawn(ctx, *name))

	case "collect":
		return report(c.Resources.Collect(ctx))

	case "place":
		fs := flag.NewFlagSet("place", flag.ExitOnError)
		typ := fs.String("type", "", "building type")
		x := fs.Uint("x", 0, "column")
		y := fs.Uint("y", 0, "row")
		_ = fs.Parse(args)
		t, ok := parseVariant(*typ, model.BuildingTypeNames)
		if !ok {
			return fmt.Errorf("unknown building type %q", *typ)
		}
		return report(c.Buildings.Place(ctx, model.BuildingType(t), model.Position{X: uint32(*x), Y: uint32(*y)}))

	case "upgrade", "finish":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Uint("id", 0, "building id")
		_ = fs.Parse(args)
		if cmd == "upgrade" {
			return report(c.Buildings.Upgrade(ctx, uint32(*id)))
		}
		return report(c.Buildings.Finish(ctx, uint32(*id)))

	case "move":
		fs := flag.NewFlagSet("move", flag.ExitOnError)
		id := fs.Uint("id", 0, "building id")
		x := fs.Uint("x", 0, "column")
		y := fs.Uint("y", 0, "row")
		_ = fs.Parse(args)
		return report(c.Buildings.Move(ctx, uint32(*id), model.Position{X: uint32(*x), Y: uint32(*y)}))

	case "train-worker":
		return report(c.Workers.Train(ctx))

	case "finish-worker":
		return report(c.Workers.Finish(ctx))

	case "train":
		fs := flag.NewFlagSet("train", flag.ExitOnError)
		troop := fs.String("troop", "", "troop type")
		qty := fs.Uint("qty", 1, "quantity")
		barracks := fs.Uint("barracks", 0, "barracks id (0 picks one)")
		_ = fs.Parse(args)
		t, ok := parseVariant(*troop, model.TroopTypeNames)
		if !ok {
			return fmt.Errorf("unknown troop type %q", *troop)
		}
		var pin *uint32
		if *barracks > 0 {
			id := uint32(*barracks)
			pin = &id
		}
		return report(c.Troops.Train(ctx, model.TroopType(t), uint32(*qty), pin))

	case "raid":
		fs := flag.NewFlagSet("raid", flag.ExitOnError)
		target := fs.String("target", "", "defender address")
		deploy := fs.String("deploy", "", `drops, e.g. "Barbarian@0,5 Archer@39,2"`)
		end := fs.Bool("end", false, "end the battle after deploying")
		_ = fs.Parse(args)
		drops, err := parseDrops(*deploy)
		if err != nil {
			return err
		}
		return raid(ctx, c.Battles, *target, drops, *end)

	case "watch":
		c.Observe(func(action string, s service.State) {
			fmt.Fprintf(os.Stderr, "%s: %s\n", action, s)
		})
		err := c.Run(ctx, func(s derive.Snapshot) { printLine(s) })
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err

	default:
		usage()
	}
	return nil
}

// cmdLogin issues a dev session token for address. Without a key the session carries
// the address only and the indexer must run unauthenticated.
func cmdLogin(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	addr := fs.String("address", "", "wallet address")
	key := fs.String("key", os.Getenv("VILLAGE_INDEXER_JWT_KEY"), "indexer HS256 key")
	ttl := fs.Duration("ttl", 24*time.Hour, "session lifetime")
	_ = fs.Parse(args)

	a := model.NormalizeAddress(*addr)
	if a == "" {
		fmt.Fprintln(os.Stderr, "need -address")
		os.Exit(1)
	}
	s := sessionFile{Address: a}
	if *key != "" {
		tok, exp, err := session.NewIssuer([]byte(*key), *ttl).Issue(a)
		if err != nil {
			fail(err)
		}
		s.AccessToken, s.ExpiresAt = tok, exp
	}
	if err := saveSession(s); err != nil {
		fail(err)
	}
	fmt.Println(a)
}

// raid starts an attack on target, drops every troop in order and optionally ends it.
func raid(ctx context.Context, svc *service.BattleService, target string, drops []drop, end bool) error {
	b, err := svc.StartAttack(ctx, target)
	if err != nil {
		return err
	}
	fmt.Printf("battle %d against %s\n", b.ID, b.Defender)
	for _, d := range drops {
		if _, err := svc.Deploy(ctx, d.troop, d.pos); err != nil {
			return fmt.Errorf("deploy %s at %d,%d: %w", d.troop, d.pos.X, d.pos.Y, err)
		}
	}
	if !end {
		return nil
	}
	rec, err := svc.End(ctx)
	if err != nil {
		return err
	}
	printJSON(rec)
	return nil
}

type drop struct {
	troop model.TroopType
	pos   model.Position
}

// parseDrops reads space-separated "Troop@x,y" tokens.
func parseDrops(s string) ([]drop, error) {
	var out []drop
	for _, tok := range strings.Fields(s) {
		name, at, ok := strings.Cut(tok, "@")
		if !ok {
			return nil, fmt.Errorf("bad drop %q: want Troop@x,y", tok)
		}
		t, ok := parseVariant(name, model.TroopTypeNames)
		if !ok {
			return nil, fmt.Errorf("bad drop %q: unknown troop", tok)
		}
		xs, ys, ok := strings.Cut(at, ",")
		if !ok {
			return nil, fmt.Errorf("bad drop %q: want Troop@x,y", tok)
		}
		x, err := strconv.ParseUint(xs, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad drop %q: %w", tok, err)
		}
		y, err := strconv.ParseUint(ys, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad drop %q: %w", tok, err)
		}
		out = append(out, drop{troop: model.TroopType(t), pos: model.Position{X: uint32(x), Y: uint32(y)}})
	}
	return out, nil
}

func parseVariant(name string, variants []string) (int, bool) {
	for i, v := range variants {
		if strings.EqualFold(v, name) {
			return i, true
		}
	}
	return 0, false
}

// ---- output ----

func report(res service.Result, err error) error {
	if err != nil {
		return err
	}
	fmt.Printf("%s tx=%s run=%s\n", res.State, res.Receipt.TxHash, res.ID)
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printLine(s derive.Snapshot) {
	busy := 0
	for _, b := range s.Buildings {
		if b.IsUpgrading {
			busy++
		}
	}
	fmt.Printf("rev=%d diamond=%d(+%d) gas=%d(+%d) builders=%d/%d upgrading=%d army=%d/%d\n",
		s.Revision, s.Player.Diamond, s.Pending.Diamond, s.Player.Gas, s.Pending.Gas,
		s.Player.FreeBuilders, s.Player.TotalBuilders, busy, s.Army.TotalSpaceUsed, s.Army.MaxCapacity)
}

func fail(err error) {
	var ve *errs.ValidationError
	if errors.As(err, &ve) {
		fmt.Fprintf(os.Stderr, "rejected: %s\n", ve.Reason)
		os.Exit(1)
	}
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
