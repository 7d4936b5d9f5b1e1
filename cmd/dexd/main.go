package main

import (
	"log"
	"path/filepath"

	"github.com/apiorno/blockchain-developer-bootcamp/params"
	"github.com/apiorno/blockchain-developer-bootcamp/pkg/api"
	"github.com/apiorno/blockchain-developer-bootcamp/pkg/core/events"
	"github.com/apiorno/blockchain-developer-bootcamp/pkg/core/exchange"
	"github.com/apiorno/blockchain-developer-bootcamp/pkg/core/token"
	"github.com/apiorno/blockchain-developer-bootcamp/pkg/storage"
	"github.com/apiorno/blockchain-developer-bootcamp/pkg/util"
)

func main() {
	cfg := params.Load("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Event log + durable journal ----
	eventLog := events.NewLog(util.RealClock{})

	journal, err := storage.OpenJournal(filepath.Join(cfg.Node.DataDir, "journal.db"))
	if err != nil {
		sugar.Fatalw("journal_open_failed", "err", err)
	}
	defer journal.Close()
	eventLog.Subscribe(journal.Sink(sugar))

	if last, err := journal.LastSeq(); err == nil && last > 0 {
		sugar.Infow("journal_resumed", "last_seq", last)
	}

	// ---- Tokens: full supply minted to the deployer ----
	deployer := cfg.Exchange.Deployer
	dapp := token.New("Dapp University", "DAPP", 1_000_000, deployer, eventLog)
	meth := token.New("Mock Ether", "mETH", 1_000_000, deployer, eventLog)
	mdai := token.New("Mock Dai", "mDAI", 1_000_000, deployer, eventLog)

	// ---- Exchange ----
	ex := exchange.New(cfg.Exchange.FeeAccount, cfg.Exchange.FeePercent, eventLog, util.RealClock{}, sugar)
	ex.RegisterToken(dapp)
	ex.RegisterToken(meth)
	ex.RegisterToken(mdai)

	sugar.Infow("exchange_initialized",
		"address", ex.Address.Hex(),
		"fee_account", ex.FeeAccount().Hex(),
		"fee_percent", ex.FeePercent(),
	)

	// ---- API ----
	server := api.NewServer(ex, eventLog, sugar)
	if err := server.Start(cfg.Node.ListenAddr); err != nil {
		sugar.Fatalw("server_failed", "err", err)
	}
}
