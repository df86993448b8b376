package serve

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdUtil "github.com/emberdb/ember/cmd/util"
	"github.com/emberdb/ember/lib/engine"
	"github.com/emberdb/ember/lib/logging"
)

var (
	ServeCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start an ember shard set",
		Long: `Start an ember shard set with the specified configuration and export its
metrics. The configuration can be set via command line flags or environment
variables; the format of the environment variables is EMBER_<flag>
(e.g. EMBER_CACHE_MODE=true).`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)

	cmdUtil.SetupEngineFlags(ServeCmd)

	key := "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:9090", cmdUtil.WrapString("The address on which the Prometheus metrics endpoint will listen"))
}

// processConfig binds the flags and configures logging
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	logging.InitLoggers(viper.GetString("log-level"))
	return nil
}

// run boots the shard set and serves metrics until interrupted
func run(_ *cobra.Command, _ []string) error {
	opts := cmdUtil.GetEngineOptions()

	set := engine.NewShardSet(opts)
	defer set.Shutdown()

	fmt.Printf("ember: %d shards up (cache mode: %v, maxmemory: %d)\n",
		set.Size(), opts.CacheMode, opts.MaxMemory)

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		set.WritePrometheus(w)
	})

	endpoint := viper.GetString("metrics-endpoint")
	server := &http.Server{Addr: endpoint, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "metrics endpoint: %v\n", err)
		}
	}()
	fmt.Printf("metrics on http://%s/metrics\n", endpoint)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	_ = server.Close()
	return nil
}
