// Package interactive provides the operator console for basecampd.
package interactive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/chzyer/readline"

	"github.com/basecamp-iot/basecamp-go/pkg/basecamp"
	"github.com/basecamp-iot/basecamp-go/pkg/config"
)

// Console handles the interactive operator session of basecampd.
type Console struct {
	agent  *basecamp.Basecamp
	logger *slog.Logger
	rl     *readline.Instance
}

// New creates a console attached to the running agent.
func New(agent *basecamp.Basecamp, logger *slog.Logger) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "basecamp> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("creating readline: %w", err)
	}

	c := &Console{
		agent:  agent,
		logger: logger,
		rl:     rl,
	}

	// Show agent events between prompts.
	agent.OnEvent(c.handleEvent)

	return c, nil
}

// Stdout returns a writer that coordinates with the readline prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
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

		case "status", "s":
			c.cmdStatus()

		case "info", "i":
			c.cmdInfo()

		case "config", "c":
			c.cmdConfig()

		case "get":
			c.cmdGet(args)

		case "set":
			c.cmdSet(args)

		case "unset":
			c.cmdUnset(args)

		case "save":
			c.cmdSave()

		case "reset":
			c.cmdReset()

		case "restart":
			c.cmdRestart(args)

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Basecamp Device Commands:
  Inspection:
    status             - Show a one-line device status
    info               - Show the full device summary

  Configuration:
    config             - List all configuration keys
    get <key>          - Read a configuration value
    set <key> <value>  - Set a configuration value (not yet saved)
    unset <key>        - Clear a configuration value (not yet saved)
    save               - Persist the configuration and restart
    reset              - Clear all configuration except the AP secret

  General:
    restart [reason]   - Restart the device
    help               - Show this help
    quit               - Exit basecampd

  Common keys:
    wifiEssid wifiPassword wifiConfigured deviceName
    mqttHost mqttUser mqttPass mqttActive otaActive`)
}

func (c *Console) cmdStatus() {
	status := c.agent.Status()
	ip := "-"
	if status.IP != nil {
		ip = status.IP.String()
	}
	fmt.Fprintf(c.rl.Stdout(), "%s mode=%s connected=%t ip=%s boots=%d\n",
		c.agent.State(), status.Mode, status.Connected, ip, status.BootCount)
}

func (c *Console) cmdInfo() {
	fmt.Fprint(c.rl.Stdout(), c.agent.SystemInfo())
}

func (c *Console) cmdConfig() {
	store := c.agent.Store()
	keys := store.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	if len(keys) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "(no configuration)")
		return
	}
	for _, key := range keys {
		fmt.Fprintf(c.rl.Stdout(), "%-22s = %s\n", key, redact(key, store.Get(key)))
	}
	if store.Tainted() {
		fmt.Fprintln(c.rl.Stdout(), "(unsaved changes, use 'save')")
	}
}

func (c *Console) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: get <key>")
		return
	}
	key := config.Key(args[0])
	if !c.agent.Store().IsSet(key) {
		fmt.Fprintf(c.rl.Stdout(), "%s is not set\n", key)
		return
	}
	fmt.Fprintln(c.rl.Stdout(), c.agent.Store().Get(key))
}

func (c *Console) cmdSet(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: set <key> <value>")
		return
	}
	key := config.Key(args[0])
	value := strings.Join(args[1:], " ")
	c.agent.Store().Set(key, value)
	fmt.Fprintf(c.rl.Stdout(), "%s = %s (unsaved)\n", key, redact(key, value))
}

func (c *Console) cmdUnset(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: unset <key>")
		return
	}
	c.agent.Store().Set(config.Key(args[0]), "")
	fmt.Fprintf(c.rl.Stdout(), "%s cleared (unsaved)\n", args[0])
}

func (c *Console) cmdSave() {
	if err := c.agent.Store().Save(); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.rl.Stdout(), "Configuration saved, restarting...")
	c.agent.RequestRestart("console save")
}

func (c *Console) cmdReset() {
	if err := c.agent.Store().Reset(config.KeyAccessPointSecret); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.rl.Stdout(), "Configuration cleared (AP secret kept)")
}

func (c *Console) cmdRestart(args []string) {
	reason := "console restart"
	if len(args) > 0 {
		reason = strings.Join(args, " ")
	}
	fmt.Fprintln(c.rl.Stdout(), "Restarting...")
	c.agent.RequestRestart(reason)
}

// handleEvent prints agent events without disturbing the prompt.
func (c *Console) handleEvent(ev basecamp.Event) {
	switch ev.Type {
	case basecamp.EventConnected:
		fmt.Fprintf(c.rl.Stdout(), "\n[event] connected, ip=%s\n", ev.IP)
	case basecamp.EventDisconnected:
		fmt.Fprintln(c.rl.Stdout(), "\n[event] disconnected")
	case basecamp.EventSetupClientJoined:
		fmt.Fprintf(c.rl.Stdout(), "\n[event] setup client joined: %s\n", ev.Station)
	case basecamp.EventRestartRequested:
		fmt.Fprintf(c.rl.Stdout(), "\n[event] restart requested: %s\n", ev.Reason)
	}
}

// redact hides secret values in listings.
func redact(key config.Key, value string) string {
	if value == "" {
		return ""
	}
	switch key {
	case config.KeyWifiPassword, config.KeyAccessPointSecret,
		config.KeyMQTTPassword, config.KeyOTAPassword:
		return strings.Repeat("*", 8)
	}
	return value
}
