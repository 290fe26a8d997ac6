// Command ft8op-receiver runs the listening half of ft8op: it opens the
// WSJT-X UDP feed, classifies every decode, and maintains the shared
// candidate pool the transmitter reads from.
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
	"github.com/cwsl/ft8op/internal/geo"
	"github.com/cwsl/ft8op/internal/logging"
	"github.com/cwsl/ft8op/internal/metrics"
	"github.com/cwsl/ft8op/internal/receiver"
	"github.com/cwsl/ft8op/internal/state"
	"github.com/cwsl/ft8op/internal/store"
	"github.com/cwsl/ft8op/internal/wsjtx"
)

func main() {
	configPath := flag.String("config", "ft8op.yaml", "Path to configuration file")
	metricsAddr := flag.String("metrics-listen", ":9091", "Address for the Prometheus /metrics endpoint")
	adifStartup := flag.String("adif-startup", "", "Path to an ADIF logbook export to ingest at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("ft8op-receiver: load config: %v", err)
	}

	bootID := uuid.New().String()
	logFile, err := logging.Open(filepath.Join(cfg.Logging.Dir, "receiver.log"), int64(cfg.Logging.MaxSize), cfg.Logging.Backups)
	if err != nil {
		log.Fatalf("ft8op-receiver: open log file: %v", err)
	}
	defer logFile.Close()
	log.SetOutput(logFile)
	log.Printf("ft8op-receiver: boot %s starting", bootID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := state.Open(cfg.Connection.RedisHost, cfg.Connection.RedisPort)
	defer st.Close()

	doc, err := store.Open(ctx, cfg.Connection.MongoHost, cfg.Connection.MongoPort, cfg.Connection.QRZUser)
	if err != nil {
		log.Fatalf("ft8op-receiver: open document store: %v", err)
	}
	defer func() {
		if err := doc.Close(ctx); err != nil {
			log.Printf("ft8op-receiver: close document store: %v", err)
		}
	}()

	cty := geo.NewTable()
	if cfg.Files.CTYDat != "" {
		if err := cty.Load(cfg.Files.CTYDat); err != nil {
			log.Fatalf("ft8op-receiver: load cty.dat: %v", err)
		}
	}

	geoSvc, err := geo.NewIPService(cfg.Files.GeoIPDB)
	if err != nil {
		log.Fatalf("ft8op-receiver: open geoip database: %v", err)
	}
	defer geoSvc.Close()

	exc, err := receiver.NewExceptionLists(
		cfg.Files.CallsignException,
		cfg.Files.ReceiverException,
		cfg.Files.ValidCallsignCSV,
		cfg.Files.DXCCPriority,
		cfg.Files.DXCCVIP,
	)
	if err != nil {
		log.Fatalf("ft8op-receiver: load exception lists: %v", err)
	}

	m := metrics.New()

	remoteAddr := &net.UDPAddr{IP: net.ParseIP(cfg.Connection.WSJTXIP), Port: cfg.Connection.WSJTXPort}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		log.Fatalf("ft8op-receiver: open UDP socket: %v", err)
	}
	defer conn.Close()

	enc := wsjtx.Encoder{ClientID: "ft8op"}
	cmd := state.NewCommander(st, enc, conn, remoteAddr)

	loop := receiver.NewLoop(cfg, st, doc, cty, exc, m)
	loop.Commander = cmd
	loop.Geo = geoSvc

	if err := loop.Init(ctx); err != nil {
		log.Fatalf("ft8op-receiver: init: %v", err)
	}

	if *adifStartup != "" {
		data, err := os.ReadFile(*adifStartup)
		if err != nil {
			log.Fatalf("ft8op-receiver: read %s: %v", *adifStartup, err)
		}
		if err := loop.IngestADIFStartup(ctx, data); err != nil {
			log.Fatalf("ft8op-receiver: ingest startup ADIF: %v", err)
		}
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			log.Printf("ft8op-receiver: metrics server: %v", err)
		}
	}()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Println("ft8op-receiver: shutting down")
		st.SetClosed(ctx, true)
		cancel()
		conn.Close()
	}()

	log.Printf("ft8op-receiver: listening for WSJT-X UDP on %s", conn.LocalAddr())

	buf := make([]byte, 8192)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("ft8op-receiver: read: %v", err)
			continue
		}

		pkt, err := wsjtx.DecodePacket(buf[:n])
		if err != nil {
			log.Printf("ft8op-receiver: decode from %s: %v", from, err)
			continue
		}

		if err := loop.HandlePacket(ctx, pkt, from); err != nil {
			log.Printf("ft8op-receiver: handle packet from %s: %v", from, err)
		}
	}
}
