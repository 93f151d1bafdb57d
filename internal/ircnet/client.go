// Package ircnet wraps github.com/lrstanley/girc, treating it as an
// external collaborator: wire framing, line parsing and CAP
// negotiation are its job, not the core's. Client translates girc's
// callback-style events into a stream of core.Event values and
// implements core.Sender so the outbound pipeline can write through it.
package ircnet

import (
	"crypto/tls"
	"fmt"

	"github.com/lrstanley/girc"

	"github.com/relaybot/relaybot/internal/config"
	"github.com/relaybot/relaybot/internal/core"
	"github.com/relaybot/relaybot/internal/rlog"
)

// Client owns the girc.Client and fans its events out to a channel the
// main loop drains (internal/mainloop).
type Client struct {
	girc   *girc.Client
	Events chan core.Event
}

func New(cfg *config.Config) *Client {
	gcfg := girc.Config{
		Server:    cfg.Server,
		Port:      cfg.Port,
		Nick:      cfg.Nick,
		User:      cfg.Nick,
		Name:      cfg.Nick,
		Password:  cfg.Pass,
		SSL:       cfg.Port == 6697 || cfg.Port == 7000,
		TLSConfig: &tls.Config{InsecureSkipVerify: false},
	}

	c := &Client{
		girc:   girc.New(gcfg),
		Events: make(chan core.Event, 256),
	}
	c.registerHandlers(cfg)
	return c
}

func (c *Client) registerHandlers(cfg *config.Config) {
	g := c.girc

	g.Handlers.AddBg(girc.CONNECTED, func(gc *girc.Client, e girc.Event) {
		if cfg.IsTwitch {
			gc.Cmd.SendRaw("CAP REQ :twitch.tv/membership")
		}
		if cfg.NickservPass != "" {
			gc.Cmd.Message("nickserv", "IDENTIFY "+cfg.NickservPass)
		}
		for _, ch := range cfg.Channels {
			gc.Cmd.Join(ch)
		}
		c.emit(core.Event{Kind: core.KindConnect, Server: cfg.Server})
	})

	g.Handlers.AddBg(girc.PRIVMSG, func(gc *girc.Client, e girc.Event) {
		if e.Source == nil || len(e.Params) == 0 {
			return
		}
		target := e.Params[0]
		text := e.Last()

		if e.IsAction() {
			c.emit(core.Event{Kind: core.KindAction, Channel: target, Nick: e.Source.Name, Text: text})
			return
		}

		if girc.IsValidChannel(target) {
			c.emit(core.Event{Kind: core.KindMsg, Channel: target, Nick: e.Source.Name, Text: text})
		} else {
			c.emit(core.Event{Kind: core.KindPM, Nick: e.Source.Name, Text: text})
		}
	})

	g.Handlers.AddBg(girc.JOIN, func(gc *girc.Client, e girc.Event) {
		if e.Source == nil || len(e.Params) == 0 {
			return
		}
		c.emit(core.Event{Kind: core.KindJoin, Channel: e.Params[0], Nick: e.Source.Name})
	})

	g.Handlers.AddBg(girc.PART, func(gc *girc.Client, e girc.Event) {
		if e.Source == nil || len(e.Params) == 0 {
			return
		}
		c.emit(core.Event{Kind: core.KindPart, Channel: e.Params[0], Nick: e.Source.Name})
	})

	g.Handlers.AddBg(girc.NICK, func(gc *girc.Client, e girc.Event) {
		if e.Source == nil || len(e.Params) == 0 {
			return
		}
		c.emit(core.Event{Kind: core.KindNick, OldNick: e.Source.Name, NewNick: e.Params[0]})
	})

	g.Handlers.AddBg(girc.RPL_NAMREPLY, func(gc *girc.Client, e girc.Event) {
		if len(e.Params) < 3 {
			return
		}
		channel := e.Params[2]
		for _, nick := range girc.ParseNickList(e.Last()) {
			c.emit(core.Event{Kind: core.KindJoin, Channel: channel, Nick: nick, Synthetic: true})
		}
	})

	g.Handlers.AddBg(girc.PONG, func(gc *girc.Client, e girc.Event) {
		c.emit(core.Event{Kind: core.KindUnknown, UnknownEvent: "PONG", UnknownOrigin: gc.Config.Server})
	})

	g.Handlers.AddBg(girc.ALL_EVENTS, func(gc *girc.Client, e girc.Event) {
		if !isHandledElsewhere(e.Command) {
			c.emit(core.Event{Kind: core.KindUnknown, UnknownEvent: e.Command, UnknownOrigin: source(e), Params: e.Params})
		}
	})
}

func isHandledElsewhere(cmd string) bool {
	switch cmd {
	case girc.CONNECTED, girc.PRIVMSG, girc.JOIN, girc.PART, girc.NICK, girc.RPL_NAMREPLY, girc.PONG, girc.PING:
		return true
	}
	return false
}

func source(e girc.Event) string {
	if e.Source != nil {
		return e.Source.Name
	}
	return ""
}

func (c *Client) emit(ev core.Event) {
	select {
	case c.Events <- ev:
	default:
		rlog.Warn("ircnet: event channel full, dropping %v", ev.Kind)
	}
}

// Connect blocks until the connection drops or an unrecoverable error
// occurs; the main loop calls it from its own goroutine and reacts to
// its return per the reconnect state machine.
func (c *Client) Connect() error {
	if err := c.girc.Connect(); err != nil {
		return fmt.Errorf("irc connect: %w", err)
	}
	return nil
}

func (c *Client) Close() { c.girc.Close() }

// Sender implementation, used by the outbound pipeline.

func (c *Client) SendRaw(line string) error {
	return c.girc.Cmd.SendRaw(line)
}

func (c *Client) Join(channel string) error {
	c.girc.Cmd.Join(channel)
	return nil
}

func (c *Client) Part(channel string) error {
	c.girc.Cmd.Part(channel)
	return nil
}
