package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/justinvforvendetta/electrum-xmc/pkg/cert"
	"github.com/justinvforvendetta/electrum-xmc/pkg/connection"
	"github.com/justinvforvendetta/electrum-xmc/pkg/network"
	"github.com/justinvforvendetta/electrum-xmc/pkg/transport"
)

// console is the interactive command loop. Replies and notifications
// arrive asynchronously through handleEvent and are printed through the
// readline writer so they do not mangle the prompt.
type console struct {
	rl    *readline.Instance
	store *cert.Store
	net   *network.Network
}

func newConsole(store *cert.Store) (*console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "electrum> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &console{rl: rl, store: store}, nil
}

func (c *console) close() {
	c.rl.Close()
}

// run reads commands until EOF or quit.
func (c *console) run() {
	c.printHelp()

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "connect", "c":
			c.cmdConnect(args)

		case "send", "s":
			c.cmdSend(args)

		case "status", "st":
			c.cmdStatus()

		case "certs":
			c.cmdCerts()

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (try 'help')\n", cmd)
		}
	}
}

func (c *console) printHelp() {
	fmt.Fprint(c.rl.Stdout(), `Commands:
  connect <host:port:scheme>  switch to another server (t=tcp, s=tls)
  send <method> [json-args]   send a request, e.g. send server.banner
                              or send blockchain.estimatefee [2]
  status                      show connection state and server version
  certs                       list pinned certificates and their expiry
  help                        show this help
  quit                        exit
`)
}

func (c *console) cmdConnect(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "usage: connect <host:port:scheme>")
		return
	}
	endpoint, err := transport.ParseEndpoint(args[0])
	if err != nil {
		fmt.Fprintln(c.rl.Stdout(), "error:", err)
		return
	}
	c.net.SetServer(endpoint)
	fmt.Fprintf(c.rl.Stdout(), "switching to %s\n", endpoint)
}

func (c *console) cmdSend(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "usage: send <method> [json-args]")
		return
	}
	method := args[0]

	var params []any
	if len(args) > 1 {
		raw := strings.Join(args[1:], " ")
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			fmt.Fprintf(c.rl.Stdout(), "arguments must be a JSON array: %v\n", err)
			return
		}
	}

	id, err := c.net.Send(method, params, nil, nil)
	if err != nil {
		fmt.Fprintln(c.rl.Stdout(), "error:", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "sent %s (id %d)\n", method, id)
}

func (c *console) cmdStatus() {
	w := c.rl.Stdout()
	fmt.Fprintf(w, "server:    %s\n", c.net.Server())
	if c.net.IsConnected() {
		fmt.Fprintln(w, "state:     CONNECTED")
		if v := c.net.ServerVersion(); v != "" {
			fmt.Fprintf(w, "reports:   %s\n", v)
		}
	} else {
		fmt.Fprintln(w, "state:     not connected")
	}
}

func (c *console) cmdCerts() {
	w := c.rl.Stdout()
	infos, err := c.store.Audit(time.Now())
	if err != nil {
		fmt.Fprintln(w, "error:", err)
		return
	}
	if len(infos) == 0 {
		fmt.Fprintln(w, "no pinned certificates")
		return
	}
	for _, info := range infos {
		switch {
		case info.Err != nil:
			fmt.Fprintf(w, "%-40s unreadable: %v\n", info.Host, info.Err)
		case info.Expired:
			fmt.Fprintf(w, "%-40s EXPIRED %s\n", info.Host,
				info.NotAfter.Format("2006-01-02"))
		default:
			fmt.Fprintf(w, "%-40s valid until %s\n", info.Host,
				info.NotAfter.Format("2006-01-02"))
		}
	}
}

// handleEvent runs on the network's event loop.
func (c *console) handleEvent(ev connection.Event) {
	w := c.rl.Stdout()

	if ev.IsStateChange() {
		fmt.Fprintf(w, "* %s\n", ev.Interface.Describe())
		return
	}

	reply := ev.Reply
	payload := reply.Result
	if reply.Err != nil {
		payload = map[string]any{"error": reply.Err}
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprint(payload))
	}
	fmt.Fprintf(w, "< %s %s\n", reply.Method, data)
}
