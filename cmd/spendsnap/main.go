package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"spendsnap/internal/cli"
	"spendsnap/internal/config"
	"spendsnap/internal/core"
	"spendsnap/internal/log"
)

const shutdownTimeout = 5 * time.Second

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":          {"login -u USER [-p PASSWORD]", runLogin},
	"logout":         {"logout", runLogout},
	"register":       {"register -u USER [-p PASSWORD]", runRegister},
	"whoami":         {"whoami", runWhoami},
	"expenses":       {"expenses [-page N] [-month M -year Y] [-q TEXT]", runRecords(core.KindExpense)},
	"income":         {"income [-page N] [-month M -year Y] [-q TEXT]", runRecords(core.KindIncome)},
	"add-expense":    {"add-expense -amount A -category C [-date YYYY-MM-DD] [-d TEXT]", runAdd(core.KindExpense)},
	"add-income":     {"add-income -amount A -category C [-date YYYY-MM-DD] [-d TEXT]", runAdd(core.KindIncome)},
	"delete-expense": {"delete-expense [-month M -year Y] ID", runDelete(core.KindExpense)},
	"delete-income":  {"delete-income [-month M -year Y] ID", runDelete(core.KindIncome)},
	"chart":          {"chart [-months N] [-month M -year Y]", runChart},
	"accounts":       {"accounts [-status ACTIVE|INACTIVE|ALL] [-q TEXT] [-page N]", runAccounts},
	"create-account": {"create-account -name NAME -currency CCY [-apr RATE] [-opening AMOUNT]", runCreateAccount},
	"deposit":        {"deposit ID AMOUNT [MEMO]", runMove(moveDeposit)},
	"withdraw":       {"withdraw ID AMOUNT [MEMO]", runMove(moveWithdraw)},
	"transfer":       {"transfer FROM TO AMOUNT [MEMO]", runTransfer},
	"archive":        {"archive ID", runArchive},
	"mask":           {"mask on|off|toggle", runMask},
	"watch":          {"watch", runWatch},
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: spendsnap <command> [flags]")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
	}
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		usage()
		os.Exit(2)
	}

	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, nil)
	ctx = log.WithContext(ctx, logger)
	code := run(ctx, cfg, logger, cmd, flag.Args()[1:])
	if ctx.Err() != nil {
		cli.WaitForShutdown(ctx, done)
	}
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger, cmd command, args []string) int {
	sc := cli.InitSessionContext(ctx, logger, cfg)
	a, err := newApp(ctx, cfg, sc, logger, os.Stdout)
	if err != nil {
		logger.Error("Failed to start client", log.FieldError, err)
		_ = sc.Cleanup()
		return 1
	}
	defer func() {
		if err := a.close(); err != nil {
			logger.Warn("Cleanup failed", log.FieldError, err)
		}
	}()

	logger.DebugContext(ctx, "Client started",
		log.FieldOperation, log.OpStartup,
		log.FieldOrigin, sc.Bus.Origin(),
		"backend", cfg.SessionBackend)

	if err := cmd.run(ctx, a, args); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		return 1
	}
	return 0
}
