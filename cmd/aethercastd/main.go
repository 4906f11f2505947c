package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"aethercast/internal/config"
	"aethercast/internal/dhcp"
	"aethercast/internal/firmware"
	"aethercast/internal/metrics"
	"aethercast/internal/p2p"
	"aethercast/internal/supplicant"
)

var (
	configPath string
	log        = logrus.New()
)

func main() {
	root := &cobra.Command{
		Use:   "aethercastd",
		Short: "Wi-Fi P2P / Miracast connection manager daemon",
		RunE:  run,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML configuration file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	configureLogging(cfg.Log)

	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("connect to system bus: %w", err)
	}
	defer conn.Close()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	go serveMetrics(cfg.Metrics, reg)

	var firmwareLoader p2p.FirmwareLoader
	if cfg.P2P.NeedFirmware {
		firmwareLoader = firmware.NewLoader(cfg.P2P.FirmwareCommand, cfg.P2P.FirmwareArgs, cfg.P2P.FirmwareSentinel, log.WithField("component", "firmware"))
	}

	deps := p2p.ManagerDeps{
		Metrics:  collector,
		Presence: supplicant.NewPresence(conn, log.WithField("component", "presence")),
		Firmware: firmwareLoader,
		NewManagerProxy: func() (p2p.ManagerProxy, error) {
			return supplicant.NewManager(conn, log.WithField("component", "manager"))
		},
		NewHostnameProxy: func() (p2p.HostnameProxy, error) {
			return supplicant.NewHostname(conn, log.WithField("component", "hostname"))
		},
		NewBind: supplicant.Bind(conn, log.WithField("component", "p2pdevice")),
		NewDHCP: dhcp.NewOps(log.WithField("component", "dhcp")),
		Config: p2p.LifecycleConfig{
			DedicatedInterface:  cfg.P2P.DedicatedInterface,
			NeedFirmware:        cfg.P2P.NeedFirmware,
			ManagementInterface: cfg.P2P.ManagementInterface,
			ConnectTimeout:      cfg.P2P.ConnectTimeout,
		},
		Log: log.WithField("component", "p2p"),
	}

	manager := p2p.NewManager(deps)
	manager.SetDelegate(loggingDelegate{log: log})

	if err := manager.Setup(); err != nil {
		return fmt.Errorf("setup p2p manager: %w", err)
	}
	defer manager.Release()

	log.Info("aethercastd ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	return nil
}

func configureLogging(cfg config.LogConfig) {
	if lvl, err := logrus.ParseLevel(cfg.Level); err == nil {
		log.SetLevel(lvl)
	}
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func serveMetrics(cfg config.MetricsConfig, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("metrics server stopped")
	}
}

// loggingDelegate logs device and connection lifecycle events; a real
// upper layer (e.g. a D-Bus service of our own) would replace it via
// Manager.SetDelegate.
type loggingDelegate struct {
	log *logrus.Logger
}

func (d loggingDelegate) OnDeviceFound(dev p2p.NetworkDevice) {
	d.log.WithField("address", dev.Address).Info("peer found")
}

func (d loggingDelegate) OnDeviceLost(dev p2p.NetworkDevice) {
	d.log.WithField("address", dev.Address).Info("peer lost")
}

func (d loggingDelegate) OnDeviceChanged(dev p2p.NetworkDevice) {
	d.log.WithField("address", dev.Address).Debug("peer changed")
}

func (d loggingDelegate) OnDeviceStateChanged(dev p2p.NetworkDevice) {
	d.log.WithFields(logrus.Fields{"address": dev.Address, "state": dev.State.String()}).Info("device state changed")
}

func (d loggingDelegate) OnChanged() {
	d.log.Debug("manager state changed")
}
