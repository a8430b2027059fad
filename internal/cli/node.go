package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nicolocarcagni/fulmine/internal/p2p"
	"github.com/nicolocarcagni/fulmine/internal/rpc"
	"github.com/nicolocarcagni/fulmine/internal/validator"
)

var (
	validatorIDFlag      string
	storePathFlag        string
	listenHostFlag       string
	apiPortFlag          int
	batchIntervalMsFlag  int64
	maxBatchSizeFlag     int
	totalValidatorsFlag  int
	instantThresholdFlag float64
	timeoutWindowMsFlag  int64
	mempoolMaxSizeFlag   int
	mempoolExpireMsFlag  int64
	p2pPortFlag          int
	p2pEnabledFlag       bool
)

func currentTimeMs() int64 {
	return time.Now().UnixMilli()
}

func init() {
	nodeCmd := &cobra.Command{
		Use:   "node",
		Short: "Manage the validator node",
	}
	rootCmd.AddCommand(nodeCmd)

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the validator: mempool, micro-batch builder, finality tracker, and RPC server",
		Run:   runNodeStart,
	}
	startCmd.Flags().StringVar(&validatorIDFlag, "validator-id", "validator-1", "this node's validator identity")
	startCmd.Flags().StringVar(&storePathFlag, "store", "./fulmine-data", "badger store directory")
	startCmd.Flags().StringVar(&listenHostFlag, "listen", "0.0.0.0", "RPC server bind address")
	startCmd.Flags().IntVar(&apiPortFlag, "api-port", 8080, "RPC server port")
	startCmd.Flags().Int64Var(&batchIntervalMsFlag, "batch-interval-ms", 2000, "micro-batch interval in milliseconds")
	startCmd.Flags().IntVar(&maxBatchSizeFlag, "max-batch-size", 500, "maximum transactions per micro-batch")
	startCmd.Flags().IntVar(&totalValidatorsFlag, "total-validators", 1, "total validator count for the instant-finality quorum")
	startCmd.Flags().Float64Var(&instantThresholdFlag, "instant-threshold", 1.0, "fraction of total validators required to acknowledge a batch for instant finality")
	startCmd.Flags().Int64Var(&timeoutWindowMsFlag, "timeout-window-ms", 30000, "milliseconds before an unfinalized batch is marked timed out")
	startCmd.Flags().IntVar(&mempoolMaxSizeFlag, "mempool-max-size", 10000, "maximum pending transactions held in the mempool")
	startCmd.Flags().Int64Var(&mempoolExpireMsFlag, "mempool-expire-ms", 600000, "milliseconds before a pending transaction expires from the mempool")
	startCmd.Flags().IntVar(&p2pPortFlag, "p2p-port", 4001, "libp2p ack-gossip listen port")
	startCmd.Flags().BoolVar(&p2pEnabledFlag, "p2p", false, "enable the ack-gossip transport adapter")
	nodeCmd.AddCommand(startCmd)
}

func runNodeStart(cmd *cobra.Command, args []string) {
	cfg := validator.Config{
		ValidatorID:      validatorIDFlag,
		StorePath:        storePathFlag,
		GenesisTimestamp: currentTimeMs(),
		BatchInterval:    time.Duration(batchIntervalMsFlag) * time.Millisecond,
		MaxBatchSize:     maxBatchSizeFlag,
		TotalValidators:  totalValidatorsFlag,
		InstantThreshold: instantThresholdFlag,
		TimeoutWindow:    time.Duration(timeoutWindowMsFlag) * time.Millisecond,
		MempoolMaxSize:   mempoolMaxSizeFlag,
		MempoolExpireMs:  mempoolExpireMsFlag,
	}

	orch, err := validator.New(cfg)
	if err != nil {
		PrintError("starting validator: %v", err)
		os.Exit(1)
	}

	orch.Subscribe(logOrchestratorEvent)
	orch.Start()
	PrintSuccess("validator %s started at block height %d", cfg.ValidatorID, orch.GetLatestBlock().Number)

	if p2pEnabledFlag {
		node, err := p2p.NewNode(p2pPortFlag, func(batchID, validatorID string) {
			orch.AcknowledgeBatch(batchID, validatorID)
		})
		if err != nil {
			PrintWarning("p2p ack-gossip disabled: %v", err)
		} else {
			PrintInfo("p2p ack-gossip listening, peer id %s", node.Host.ID())
			orch.Subscribe(func(ev validator.Event) {
				if ev.Type == validator.EventBatchCreated && ev.Batch != nil {
					node.Broadcast(ev.Batch.ID)
				}
			})
		}
	}

	server := rpc.NewServer(orch)
	go func() {
		if err := server.Start(listenHostFlag, apiPortFlag); err != nil {
			PrintError("rpc server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	PrintWarning("shutting down")
	if err := orch.Shutdown(); err != nil {
		PrintError("shutdown: %v", err)
		os.Exit(1)
	}
	PrintSuccess("validator stopped cleanly")
}

func logOrchestratorEvent(ev validator.Event) {
	switch ev.Type {
	case validator.EventBatchCreated:
		if ev.Batch != nil {
			PrintBatch(ev.Batch.ID, ev.Batch.BatchNumber, len(ev.Batch.Transactions))
		}
	case validator.EventInstantFinality:
		if ev.Ack != nil {
			PrintFinality(ev.Ack.BatchID, ev.Ack.Confidence, ev.Ack.TimeToFinality)
		}
	case validator.EventBlockCreated:
		if ev.Block != nil {
			PrintSuccess("block #%d committed (%s)", ev.Block.Number, ev.Block.Hash)
		}
	}
}
