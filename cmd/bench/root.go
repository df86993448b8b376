package bench

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdUtil "github.com/emberdb/ember/cmd/util"
	"github.com/emberdb/ember/lib/core"
	"github.com/emberdb/ember/lib/engine"
	"github.com/emberdb/ember/lib/logging"
	"github.com/emberdb/ember/lib/slice"
	"github.com/emberdb/ember/lib/util"
)

var (
	BenchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Load generator against a local shard set",
		Long:    `Run a write/read/expire workload against an in-process shard set and report throughput, value-size distribution and slice events.`,
		PreRunE: processConfig,
		RunE:    run,
	}

	benchThreads   = 8
	benchKeys      = 100_000
	benchValueSize = 64
	benchTTLEvery  = 4
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)

	cmdUtil.SetupEngineFlags(BenchCmd)

	key := "threads"
	BenchCmd.PersistentFlags().Int(key, 8, cmdUtil.WrapString("Number of client goroutines"))
	key = "keys"
	BenchCmd.PersistentFlags().Int(key, 100_000, cmdUtil.WrapString("How many distinct keys to write"))
	key = "value-size"
	BenchCmd.PersistentFlags().Int(key, 64, cmdUtil.WrapString("Value size in bytes"))
	key = "ttl-every"
	BenchCmd.PersistentFlags().Int(key, 4, cmdUtil.WrapString("Arm a short TTL on every n-th key (0 disables)"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	logging.InitLoggers(viper.GetString("log-level"))

	benchThreads = viper.GetInt("threads")
	benchKeys = viper.GetInt("keys")
	benchValueSize = viper.GetInt("value-size")
	benchTTLEvery = viper.GetInt("ttl-every")
	return nil
}

func run(_ *cobra.Command, _ []string) error {
	set := engine.NewShardSet(cmdUtil.GetEngineOptions())
	defer set.Shutdown()

	fmt.Printf("bench: %d shards, %d threads, %d keys, %dB values\n",
		set.Size(), benchThreads, benchKeys, benchValueSize)

	payload := make([]byte, benchValueSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	hist := util.NewSizeHistogram()

	// writes
	start := time.Now()
	runParallel(benchThreads, benchKeys, func(i int) {
		key := fmt.Sprintf("bench-key-%d", i)
		es := set.ShardOf(key)

		var expireAt uint64
		if benchTTLEvery > 0 && i%benchTTLEvery == 0 {
			expireAt = uint64(time.Now().UnixMilli()) + 500
		}

		engine.Await(es, func() slice.OpStatus {
			value := core.NewStringValue(payload)
			_, _, status := es.DbSlice().AddEntry(0, key, value, expireAt)
			return status
		})
		hist.AddSample(benchValueSize)
	})
	writeDur := time.Since(start)

	// reads
	start = time.Now()
	var misses int64
	var missMu sync.Mutex
	runParallel(benchThreads, benchKeys, func(i int) {
		key := fmt.Sprintf("bench-key-%d", i)
		es := set.ShardOf(key)

		found := engine.Await(es, func() bool {
			it, status := es.DbSlice().Find(0, key, core.TypeString)
			return status == slice.StatusOK && !it.IsDone()
		})
		if !found {
			missMu.Lock()
			misses++
			missMu.Unlock()
		}
	})
	readDur := time.Since(start)

	stats, shardStats := set.GetStats()

	fmt.Println()
	fmt.Printf("writes: %d in %v (%.0f op/s)\n", benchKeys, writeDur,
		float64(benchKeys)/writeDur.Seconds())
	fmt.Printf("reads:  %d in %v (%.0f op/s), %d misses\n", benchKeys, readDur,
		float64(benchKeys)/readDur.Seconds(), misses)
	fmt.Printf("value size: median %dB, p99 %dB\n",
		hist.MedianEstimate(), hist.PercentileEstimate(99))
	fmt.Printf("events: expired=%d evicted=%d gc=%d bumpups=%d\n",
		stats.Events.ExpiredKeys, stats.Events.EvictedKeys,
		stats.Events.GarbageCollected, stats.Events.Bumpups)
	fmt.Printf("shard runs: ooo=%d quick=%d\n", shardStats.OooRuns, shardStats.QuickRuns)

	return nil
}

// runParallel spreads n work items over the given number of goroutines.
func runParallel(threads, n int, fn func(i int)) {
	var wg sync.WaitGroup
	wg.Add(threads)

	per := n / threads
	for w := 0; w < threads; w++ {
		go func(w int) {
			defer wg.Done()

			start := w * per
			end := start + per
			if w == threads-1 {
				end = n
			}
			for i := start; i < end; i++ {
				fn(i)
			}
		}(w)
	}

	wg.Wait()
}
