package main

import (
	"bufio"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ezmesh/meshcore/internal/store"
	"github.com/ezmesh/meshcore/internal/telemetry"
	"github.com/ezmesh/meshcore/pkg/mesh"
	"github.com/ezmesh/meshcore/pkg/radio"
	"github.com/ezmesh/meshcore/pkg/types"
)

const tickInterval = 10 * time.Millisecond

// meshCLI drives one mesh engine plus any number of in-process peer engines
// sharing the same simulated medium. The engines are single-threaded, so CLI
// commands are funneled into the tick loop as closures.
type meshCLI struct {
	engine *mesh.Engine
	peers  []*mesh.Engine
	cmds   chan func()
	quit   chan struct{}
}

func newMeshCLI(engine *mesh.Engine, peers []*mesh.Engine) *meshCLI {
	return &meshCLI{
		engine: engine,
		peers:  peers,
		cmds:   make(chan func(), 16),
		quit:   make(chan struct{}),
	}
}

// run is the tick loop. It owns every engine; nothing else touches them.
func (cli *meshCLI) run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cli.quit:
			return
		case fn := <-cli.cmds:
			fn()
		case now := <-ticker.C:
			cli.engine.Update(now)
			for _, p := range cli.peers {
				p.Update(now)
			}
		}
	}
}

// do runs fn on the tick loop and waits for it.
func (cli *meshCLI) do(fn func()) {
	done := make(chan struct{})
	cli.cmds <- func() {
		fn()
		close(done)
	}
	<-done
}

func (cli *meshCLI) interactive() error {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("mesh> ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		parts := strings.SplitN(input, " ", 2)
		command := parts[0]
		var args string
		if len(parts) > 1 {
			args = strings.TrimSpace(parts[1])
		}

		switch command {
		case "msg":
			msgParts := strings.SplitN(args, " ", 2)
			if len(msgParts) < 2 {
				fmt.Println("Usage: msg <channel> <text>")
				continue
			}
			var sendErr error
			cli.do(func() { sendErr = cli.engine.SendChannelMessage(msgParts[0], msgParts[1]) })
			if sendErr != nil {
				fmt.Printf("Failed to send: %v\n", sendErr)
			}

		case "join":
			if args == "" {
				fmt.Println("Usage: join <channel> [password]")
				continue
			}
			joinParts := strings.SplitN(args, " ", 2)
			password := ""
			if len(joinParts) > 1 {
				password = joinParts[1]
			}
			var joinErr error
			cli.do(func() { joinErr = cli.engine.JoinChannel(joinParts[0], password) })
			if joinErr != nil {
				fmt.Printf("Failed to join: %v\n", joinErr)
			} else {
				fmt.Printf("Joined %s\n", joinParts[0])
			}

		case "leave":
			if args == "" {
				fmt.Println("Usage: leave <channel>")
				continue
			}
			var leaveErr error
			cli.do(func() { leaveErr = cli.engine.LeaveChannel(args) })
			if leaveErr != nil {
				fmt.Printf("Failed to leave: %v\n", leaveErr)
			}

		case "channels":
			var channels []string
			cli.do(func() {
				for _, ch := range cli.engine.Channels() {
					state := "left"
					if ch.Joined {
						state = "joined"
					}
					channels = append(channels, fmt.Sprintf("  %s (hash %02X, %s)", ch.Name, ch.Hash, state))
				}
			})
			for _, line := range channels {
				fmt.Println(line)
			}

		case "nodes":
			var nodes []types.Node
			cli.do(func() { nodes = cli.engine.Nodes() })
			if len(nodes) == 0 {
				fmt.Println("No nodes heard yet")
				continue
			}
			for _, n := range nodes {
				fmt.Printf("  %02X %-16s rssi %.0f dBm, snr %.1f dB, %d hops, last seen %s\n",
					n.PathHash, n.Name, n.RSSI, n.SNR, n.HopCount,
					n.LastSeen.Format("15:04:05"))
			}

		case "announce":
			var annErr error
			cli.do(func() { annErr = cli.engine.SendAnnounce() })
			if annErr != nil {
				fmt.Printf("Failed to announce: %v\n", annErr)
			}

		case "status":
			cli.do(func() {
				id := cli.engine.Identity()
				fmt.Printf("Node: %s (%s), path hash %02X\n", id.Name(), id.FullID(), id.PathHash())
				fmt.Printf("TX %d frames, RX %d frames\n", cli.engine.TxCount(), cli.engine.RxCount())
				fmt.Printf("Relayed %d, suppressed %d duplicates\n",
					cli.engine.Router().Rebroadcasts(), cli.engine.Router().Duplicates())
			})

		case "help":
			fmt.Println("Available commands:")
			fmt.Println("  msg <channel> <text>      - Send a message to a channel")
			fmt.Println("  join <channel> [password] - Join a channel")
			fmt.Println("  leave <channel>           - Leave a channel")
			fmt.Println("  channels                  - List known channels")
			fmt.Println("  nodes                     - List heard nodes")
			fmt.Println("  announce                  - Broadcast an advert now")
			fmt.Println("  status                    - Show node status")
			fmt.Println("  exit                      - Exit")

		case "exit":
			close(cli.quit)
			return nil

		default:
			fmt.Printf("Unknown command: %s. Type 'help' for usage.\n", command)
		}
	}
}

func buildStore(dataDir, suffix string) (store.Store, error) {
	if dataDir == "" {
		return store.NewLocal(), nil
	}
	return store.NewDir(dataDir + suffix)
}

func main() {
	name := flag.String("name", "", "Node name (default: derived from the key)")
	channelName := flag.String("channel", "", "Extra channel to join at boot")
	password := flag.String("password", "", "Password for the extra channel")
	dataDir := flag.String("data", "", "Persistence directory (default: in-memory)")
	peerCount := flag.Int("peers", 2, "Simulated peer nodes on the shared medium")
	announce := flag.Duration("announce", 60*time.Second, "Advert interval, 0 to disable")
	metricsAddr := flag.String("metrics", "", "Address for the /metrics endpoint, empty to disable")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg := mesh.DefaultConfig()
	cfg.NodeName = *name
	cfg.AnnounceInterval = *announce
	if *channelName != "" {
		cfg.Channels = []mesh.ChannelConfig{{Name: *channelName, Password: *password}}
	}

	st, err := buildStore(*dataDir, "")
	if err != nil {
		log.WithError(err).Fatal("Failed to open data directory")
	}

	medium := radio.NewMedium()
	engine, err := mesh.New(cfg, medium.Attach(), st, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to build mesh engine")
	}

	// Background peers make the simulated medium worth looking at: they
	// answer adverts and relay floods like real neighbors would.
	var peers []*mesh.Engine
	for i := 0; i < *peerCount; i++ {
		peerCfg := mesh.DefaultConfig()
		peerCfg.AnnounceInterval = *announce
		if *channelName != "" {
			peerCfg.Channels = cfg.Channels
		}
		peerStore, err := buildStore(*dataDir, fmt.Sprintf("/peer%d", i))
		if err != nil {
			log.WithError(err).Fatal("Failed to open peer data directory")
		}
		peer, err := mesh.New(peerCfg, medium.Attach(), peerStore, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to build peer engine")
		}
		peers = append(peers, peer)
	}

	cli := newMeshCLI(engine, peers)

	engine.Bus().Subscribe(mesh.TopicGroupPacket, func(_ string, payload any) {
		ev := payload.(mesh.GroupPacketEvent)
		sender := ev.Sender
		if sender == "" {
			sender = fmt.Sprintf("%02X", ev.SenderHash)
		}
		fmt.Printf("\r[%s] %s <%s> %s\nmesh> ",
			time.Unix(int64(ev.Timestamp), 0).Format("15:04:05"), ev.Channel, sender, ev.Body)
	})
	engine.Bus().Subscribe(mesh.TopicNodeDiscovered, func(_ string, payload any) {
		node := payload.(types.Node)
		log.WithFields(logrus.Fields{
			"node": node.Name,
			"hash": fmt.Sprintf("%02X", node.PathHash),
		}).Debug("Node discovered")
	})

	if err := engine.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start radio")
	}
	for _, peer := range peers {
		if err := peer.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start peer radio")
		}
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", telemetry.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.WithError(err).Error("Metrics endpoint failed")
			}
		}()
	}

	go cli.run()

	id := engine.Identity()
	fmt.Printf("Node %s (%s) up with %d simulated peers\n", id.Name(), id.ShortID(), len(peers))
	if err := cli.interactive(); err != nil {
		log.WithError(err).Fatal("CLI error")
	}
}
