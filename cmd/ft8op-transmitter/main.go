// Command ft8op-transmitter runs the half-slot-aligned scheduling loop:
// it reads the candidate the receiver judged best and asks WSJT-X to
// reply to it.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwsl/ft8op/internal/config"
	"github.com/cwsl/ft8op/internal/logging"
	"github.com/cwsl/ft8op/internal/metrics"
	"github.com/cwsl/ft8op/internal/state"
	"github.com/cwsl/ft8op/internal/store"
	"github.com/cwsl/ft8op/internal/transmitter"
	"github.com/cwsl/ft8op/internal/wsjtx"
)

func main() {
	configPath := flag.String("config", "ft8op.yaml", "Path to configuration file")
	metricsAddr := flag.String("metrics-listen", ":9092", "Address for the Prometheus /metrics endpoint")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("ft8op-transmitter: load config: %v", err)
	}

	bootID := uuid.New().String()
	logFile, err := logging.Open(filepath.Join(cfg.Logging.Dir, "transmitter.log"), int64(cfg.Logging.MaxSize), cfg.Logging.Backups)
	if err != nil {
		log.Fatalf("ft8op-transmitter: open log file: %v", err)
	}
	defer logFile.Close()
	log.SetOutput(logFile)
	log.Printf("ft8op-transmitter: boot %s starting", bootID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := state.Open(cfg.Connection.RedisHost, cfg.Connection.RedisPort)
	defer st.Close()

	doc, err := store.Open(ctx, cfg.Connection.MongoHost, cfg.Connection.MongoPort, cfg.Connection.QRZUser)
	if err != nil {
		log.Fatalf("ft8op-transmitter: open document store: %v", err)
	}
	defer func() {
		if err := doc.Close(ctx); err != nil {
			log.Printf("ft8op-transmitter: close document store: %v", err)
		}
	}()

	m := metrics.New()

	remoteAddr := &net.UDPAddr{IP: net.ParseIP(cfg.Connection.WSJTXIP), Port: cfg.Connection.WSJTXPort}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		log.Fatalf("ft8op-transmitter: open UDP socket: %v", err)
	}
	defer conn.Close()

	enc := wsjtx.Encoder{ClientID: "ft8op"}
	cmd := state.NewCommander(st, enc, conn, remoteAddr)

	loop := transmitter.NewLoop(cfg, st, doc, cmd, m)

	if err := loop.Init(ctx); err != nil {
		log.Fatalf("ft8op-transmitter: init: %v", err)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			log.Printf("ft8op-transmitter: metrics server: %v", err)
		}
	}()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Println("ft8op-transmitter: shutting down")
		cancel()
	}()

	log.Println("ft8op-transmitter: waiting for receiver")
	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("ft8op-transmitter: run: %v", err)
	}
}
