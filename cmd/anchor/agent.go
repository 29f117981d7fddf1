package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/anchorhq/anchor/pkg/change"
	"github.com/anchorhq/anchor/pkg/config"
	"github.com/anchorhq/anchor/pkg/control"
	"github.com/anchorhq/anchor/pkg/deploy"
	"github.com/anchorhq/anchor/pkg/events"
	"github.com/anchorhq/anchor/pkg/log"
	"github.com/anchorhq/anchor/pkg/loop"
	"github.com/anchorhq/anchor/pkg/metrics"
	"github.com/anchorhq/anchor/pkg/model"
	"github.com/anchorhq/anchor/pkg/network"
	"github.com/anchorhq/anchor/pkg/persist"
	"github.com/anchorhq/anchor/pkg/runtime"
	"github.com/anchorhq/anchor/pkg/volume"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the node convergence agent",
	Long: `Run the per-node agent: discover local containers and volumes, diff
them against the desired configuration and converge.

The desired configuration comes from a deployment file (--deployment),
re-read whenever it changes. Without one the agent starts idle.`,
	RunE: runAgent,
}

func init() {
	agentCmd.Flags().String("config", "", "Path to YAML config file")
	agentCmd.Flags().String("deployment", "", "Path to desired deployment YAML")
	agentCmd.Flags().Bool("standalone", false, "Use in-memory collaborators instead of containerd, the volume pool and iptables")

	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	deploymentPath, _ := cmd.Flags().GetString("deployment")
	standalone, _ := cmd.Flags().GetBool("standalone")

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	logger := log.WithComponent("agent")

	store, err := persist.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open state store: %v", err)
	}
	defer store.Close()

	nodeUUID, err := store.NodeUUID()
	if err != nil {
		return fmt.Errorf("failed to determine node identity: %v", err)
	}
	logger.Info().
		Str("node_uuid", nodeUUID.String()).
		Str("hostname", cfg.Hostname).
		Msg("agent starting")

	var (
		runtimeClient runtime.Client
		volumeService volume.Service
		networkMgr    network.Manager
	)
	if standalone {
		runtimeClient = runtime.NewMemoryClient()
		volumeService = volume.NewMemoryService()
		networkMgr = network.NewMemoryManager()
		metrics.SetCollaboratorHealth(metrics.CollaboratorContainerd, true, "standalone")
		metrics.SetCollaboratorHealth(metrics.CollaboratorVolumes, true, "standalone")
	} else {
		client, err := runtime.NewContainerdClient(cfg.ContainerdSocket)
		if err != nil {
			metrics.SetCollaboratorHealth(metrics.CollaboratorContainerd, false, err.Error())
			return fmt.Errorf("failed to connect to containerd: %v", err)
		}
		runtimeClient = client
		metrics.SetCollaboratorHealth(metrics.CollaboratorContainerd, true, "")

		local, err := volume.NewLocalService(cfg.PoolDir)
		if err != nil {
			metrics.SetCollaboratorHealth(metrics.CollaboratorVolumes, false, err.Error())
			return fmt.Errorf("failed to open volume pool: %v", err)
		}
		volumeService = local
		metrics.SetCollaboratorHealth(metrics.CollaboratorVolumes, true, "")

		networkMgr = network.NewIPTablesManager()
	}

	target := &change.Target{
		Runtime: runtimeClient,
		Volumes: volumeService,
		Network: networkMgr,
	}
	composite := &deploy.Composite{
		NodeUUID: nodeUUID,
		Hostname: cfg.Hostname,
		Deployers: []deploy.Deployer{
			&deploy.DatasetDeployer{NodeUUID: nodeUUID, Hostname: cfg.Hostname, Volumes: volumeService},
			&deploy.ApplicationDeployer{NodeUUID: nodeUUID, Hostname: cfg.Hostname, Runtime: runtimeClient, Network: networkMgr},
		},
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	go logEvents(broker.Subscribe())

	collector := metrics.NewCollector(runtimeClient, volumeService)
	collector.Start()
	defer collector.Stop()

	if cfg.MetricsAddress != "" {
		go serveMetrics(cfg.MetricsAddress)
	}
	metrics.SetVersion(Version)

	convergence := loop.NewConvergenceLoop(composite, target, broker)
	convergence.Start()
	status := loop.NewClusterStatus(convergence, broker)

	// The deployment file stands in for a remote controller: an in-process
	// transport carries state reports, and file changes become status
	// updates.
	client := control.NewLoopback()
	status.ClientConnected(client)
	metrics.SetCollaboratorHealth(metrics.CollaboratorController, true, "loopback")

	stopWatching := make(chan struct{})
	if deploymentPath != "" {
		deployment, err := loadDeployment(deploymentPath, store, nodeUUID, cfg.Hostname)
		if err != nil {
			return err
		}
		status.StatusUpdate(deployment, model.DeploymentState{})
		go watchDeployment(deploymentPath, store, nodeUUID, cfg.Hostname, cfg.ConvergeSleep.Std(), status, stopWatching)
	} else {
		logger.Warn().Msg("no deployment file configured; agent is idle")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutting down")

	close(stopWatching)
	status.Shutdown()
	convergence.Shutdown()
	select {
	case <-convergence.Done():
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("convergence loop did not stop in time")
	}
	return nil
}

// watchDeployment polls the deployment file and pushes a fresh status update
// whenever its content produces a different configuration.
func watchDeployment(path string, store persist.Store, nodeUUID uuid.UUID, hostname string, interval time.Duration, status *loop.ClusterStatus, stopCh chan struct{}) {
	logger := log.WithComponent("deployment-watch")
	var lastModified time.Time
	if info, err := os.Stat(path); err == nil {
		lastModified = info.ModTime()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logger.Warn().Err(err).Msg("failed to stat deployment file")
				continue
			}
			if !info.ModTime().After(lastModified) {
				continue
			}
			lastModified = info.ModTime()

			deployment, err := loadDeployment(path, store, nodeUUID, hostname)
			if err != nil {
				logger.Error().Err(err).Msg("ignoring invalid deployment file")
				continue
			}
			logger.Info().Msg("deployment file changed")
			status.StatusUpdate(deployment, model.DeploymentState{})
		case <-stopCh:
			return
		}
	}
}

func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for event := range sub {
		logger.Debug().
			Str("type", string(event.Type)).
			Str("id", event.ID).
			Msg(event.Message)
	}
}

func serveMetrics(address string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())

	if err := http.ListenAndServe(address, mux); err != nil {
		logger := log.WithComponent("metrics")
		logger.Error().Err(err).Msg("metrics listener failed")
	}
}
