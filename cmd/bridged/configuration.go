package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/agentbridge/agentbridge-go/pkg/api"
	"github.com/agentbridge/agentbridge-go/pkg/discovery"
	"github.com/agentbridge/agentbridge-go/pkg/message"
	"github.com/agentbridge/agentbridge-go/pkg/registry"
	"github.com/agentbridge/agentbridge-go/pkg/router"
	"github.com/agentbridge/agentbridge-go/pkg/session"
	"github.com/agentbridge/agentbridge-go/pkg/storage"
	"github.com/agentbridge/agentbridge-go/pkg/transform"
	"github.com/agentbridge/agentbridge-go/pkg/transport"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Core      coreConf
	Logging   logConf
	Registry  registryConf
	Transform transformConf
	Transport transportConf
	API       apiConf `toml:"api"`
	Discovery discoveryConf
	Storage   storageConf
	Spool     spoolConf
	Limits    limitsConf
	Peer      []peerConf
}

// coreConf describes the core-configuration block.
type coreConf struct {
	AgentID   string `toml:"agent-id"`
	Profiling bool
}

// logConf describes the logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// registryConf describes the registry-configuration block.
type registryConf struct {
	URL      string
	TTL      string
	Timeout  string
	Retries  int
	Register bool
}

// transformConf describes the transform-configuration block.
type transformConf struct {
	Kind    string
	Value   string
	Command string
	Args    []string
	Budget  string
}

// transportConf describes the transport-configuration block.
type transportConf struct {
	Listen    string
	Advertise string
	Timeout   string
	Retries   int
	Media     string
}

// apiConf describes the api-configuration block.
type apiConf struct {
	Listen string
	Rate   float64
	Burst  int
}

// discoveryConf describes the discovery-configuration block.
type discoveryConf struct {
	IPv4     bool
	IPv6     bool
	Interval uint
}

// storageConf describes the storage-configuration block.
type storageConf struct {
	Path      string
	Retention string
}

// spoolConf describes the spool-configuration block.
type spoolConf struct {
	Directory string
}

// limitsConf describes the limits-configuration block.
type limitsConf struct {
	MaxInflight    int    `toml:"max-inflight"`
	MaxHops        int    `toml:"max-hops"`
	MaxRecords     int    `toml:"max-records"`
	ProcessTimeout string `toml:"process-timeout"`
}

// peerConf describes one statically configured peer block.
type peerConf struct {
	AgentID  string `toml:"agent-id"`
	Endpoint string
}

// bridge bundles the daemon's running components for a common shutdown.
type bridge struct {
	router   *router.Router
	resolver *registry.Resolver

	agent     *api.Agent
	apiServer *http.Server

	transportServer *transport.Server
	discovery       *discovery.Manager
	archive         *storage.Archive
	spool           *spoolWatcher

	retentionStop chan struct{}
}

// parseDuration parses an optional duration string, falling back to def.
func parseDuration(value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	return time.ParseDuration(value)
}

// configureLogging applies the logging block to logrus' standard logger.
func configureLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}

// parsePipeline creates the transformation pipeline from its block.
func parsePipeline(conf transformConf) (*transform.Pipeline, error) {
	budget, err := parseDuration(conf.Budget, 10*time.Second)
	if err != nil {
		return nil, err
	}

	switch conf.Kind {
	case "", "echo":
		return transform.NewPipeline(transform.Echo(), budget), nil

	case "prefix":
		return transform.NewPipeline(transform.Prefix(conf.Value), budget), nil

	case "upper":
		return transform.NewPipeline(transform.Upper(), budget), nil

	case "command":
		if conf.Command == "" {
			return nil, fmt.Errorf("transform.command is empty")
		}
		return transform.NewPipeline(transform.Command(conf.Command, conf.Args...), budget), nil

	default:
		return nil, fmt.Errorf("unknown transform.kind %q", conf.Kind)
	}
}

// parseMedia maps the transport.media option to a wire media type.
func parseMedia(media string) (string, error) {
	switch media {
	case "", "json":
		return message.MediaJSON, nil
	case "cbor":
		return message.MediaCBOR, nil
	default:
		return "", fmt.Errorf("unknown transport.media %q", media)
	}
}

// parseBridge assembles and starts a bridge based on the given TOML
// configuration.
func parseBridge(filename string) (b *bridge, profiling bool, err error) {
	var conf tomlConfig
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	configureLogging(conf.Logging)
	profiling = conf.Core.Profiling

	localID, idErr := message.ParseAgentID(conf.Core.AgentID)
	if idErr != nil {
		err = fmt.Errorf("core.agent-id: %w", idErr)
		return
	}

	pipeline, pipelineErr := parsePipeline(conf.Transform)
	if pipelineErr != nil {
		err = pipelineErr
		return
	}

	media, mediaErr := parseMedia(conf.Transport.Media)
	if mediaErr != nil {
		err = mediaErr
		return
	}

	if conf.Transport.Listen == "" {
		err = fmt.Errorf("transport.listen is empty")
		return
	}
	advertise := conf.Transport.Advertise
	if advertise == "" {
		advertise = conf.Transport.Listen
	}

	// Resolver: TTL cache over the registry client, seeded with static peers.
	registryTTL, ttlErr := parseDuration(conf.Registry.TTL, time.Minute)
	if ttlErr != nil {
		err = ttlErr
		return
	}
	registryTimeout, timeoutErr := parseDuration(conf.Registry.Timeout, 5*time.Second)
	if timeoutErr != nil {
		err = timeoutErr
		return
	}

	// Without a registry URL the resolver only knows static and discovered
	// peers; the lookup client stays a nil interface, not a typed nil.
	var registryClient *registry.Client
	var lookupClient registry.LookupClient
	if conf.Registry.URL != "" {
		registryClient = registry.NewClient(conf.Registry.URL, registryTimeout, conf.Registry.Retries)
		lookupClient = registryClient
	}

	resolver := registry.NewResolver(lookupClient, registry.NewCache(registryTTL))

	for _, peer := range conf.Peer {
		peerID, peerErr := message.ParseAgentID(peer.AgentID)
		if peerErr != nil {
			err = fmt.Errorf("peer.agent-id: %w", peerErr)
			return
		}
		if peer.Endpoint == "" {
			err = fmt.Errorf("peer %q has no endpoint", peer.AgentID)
			return
		}

		resolver.AddStatic(peerID, registry.Endpoint{
			Address: peer.Endpoint,
			Version: message.WireVersion,
		})

		log.WithFields(log.Fields{
			"peer":     peerID,
			"endpoint": peer.Endpoint,
		}).Info("Added static peer")
	}

	transportTimeout, transportTimeoutErr := parseDuration(conf.Transport.Timeout, 10*time.Second)
	if transportTimeoutErr != nil {
		err = transportTimeoutErr
		return
	}

	processTimeout, processTimeoutErr := parseDuration(conf.Limits.ProcessTimeout, time.Minute)
	if processTimeoutErr != nil {
		err = processTimeoutErr
		return
	}

	sessions := session.NewStore(conf.Limits.MaxRecords)
	deliverer := transport.NewClient(transportTimeout, conf.Transport.Retries, media)

	b = &bridge{resolver: resolver}

	b.router = router.New(router.Config{
		LocalID:        localID,
		MaxInflight:    conf.Limits.MaxInflight,
		MaxHops:        conf.Limits.MaxHops,
		ProcessTimeout: processTimeout,
	}, resolver, pipeline, deliverer, sessions)

	// Storage
	if conf.Storage.Path != "" {
		archive, archiveErr := storage.NewArchive(conf.Storage.Path)
		if archiveErr != nil {
			err = archiveErr
			return
		}
		b.archive = archive

		b.router.OnTerminal(func(record session.Record) {
			if pushErr := archive.Push(record); pushErr != nil {
				log.WithError(pushErr).WithField("conversation", record.ConversationID).
					Warn("Archiving conversation errored")
			}
		})

		retention, retentionErr := parseDuration(conf.Storage.Retention, 0)
		if retentionErr != nil {
			err = retentionErr
			return
		}
		if retention > 0 {
			b.retentionStop = make(chan struct{})
			go retentionSweeper(archive, retention, b.retentionStop)
		}
	}

	// Local API. Constructed before the transport server starts: its event
	// stream hook must be in place before peer requests can terminate.
	if conf.API.Listen != "" {
		b.agent = api.NewAgent(localID, b.router, sessions, b.archive, conf.API.Rate, conf.API.Burst)
		b.apiServer = &http.Server{
			Addr:    conf.API.Listen,
			Handler: b.agent,
		}

		go func() {
			if srvErr := b.apiServer.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
				log.WithError(srvErr).Error("API server stopped listening")
			}
		}()
	}

	// Transport
	b.transportServer = transport.NewServer(conf.Transport.Listen, b.router, conf.Limits.MaxHops)
	if err = b.transportServer.Start(); err != nil {
		return
	}

	// Registry self-registration
	if registryClient != nil && conf.Registry.Register {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
			defer cancel()

			if regErr := registryClient.Register(ctx, localID, registry.Endpoint{
				Address: advertise,
				Version: message.WireVersion,
			}); regErr != nil {
				log.WithError(regErr).Warn("Registering this bridge at the registry errored")
			}
		}()
	}

	// Discovery
	if conf.Discovery.IPv4 || conf.Discovery.IPv6 {
		if conf.Discovery.Interval == 0 {
			conf.Discovery.Interval = 10
		}

		b.discovery, err = discovery.NewManager(
			localID, advertise, resolver,
			time.Duration(conf.Discovery.Interval)*time.Second,
			conf.Discovery.IPv4, conf.Discovery.IPv6)
		if err != nil {
			return
		}
	}

	// Spool
	if conf.Spool.Directory != "" {
		b.spool, err = newSpoolWatcher(conf.Spool.Directory, localID, b.router, processTimeout)
		if err != nil {
			return
		}
	}

	log.WithFields(log.Fields{
		"agent":     localID,
		"transport": conf.Transport.Listen,
		"api":       conf.API.Listen,
	}).Info("Bridge is up")

	return
}

// retentionSweeper periodically removes expired conversations.
func retentionSweeper(archive *storage.Archive, retention time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			archive.DeleteOlderThan(retention)

		case <-stop:
			return
		}
	}
}

// Close shuts down all components in reverse startup order.
func (b *bridge) Close() {
	if b.spool != nil {
		b.spool.Close()
	}
	if b.discovery != nil {
		b.discovery.Close()
	}
	if b.apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := b.apiServer.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("Shutting down API server errored")
		}
	}
	if b.agent != nil {
		b.agent.Close()
	}

	b.transportServer.Close()

	if b.retentionStop != nil {
		close(b.retentionStop)
	}
	if b.archive != nil {
		if err := b.archive.Close(); err != nil {
			log.WithError(err).Warn("Closing archive errored")
		}
	}
}
