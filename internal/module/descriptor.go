// Package module defines the contract a relaybot module implements,
// and owns module discovery, loading, reload and per-module data file
// persistence. The callback surface is a direct Go re-expression of
// original_source/src/module.h's IRCModuleCtx — trusted, in-process
// code implementing an interface rather than a dlopen'd struct of
// function pointers.
package module

import (
	"fmt"
	"regexp"
	"time"
)

// Flags bits, matching IRC_MOD_GLOBAL / IRC_MOD_DEFAULT.
type Flags uint

const (
	// Global modules are not subject to per-channel enablement.
	Global Flags = 1 << iota
	// DefaultEnabled modules are auto-enabled when the bot first joins
	// a new channel.
	DefaultEnabled
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// CmdHelp is one module's `"ARGS | DESCRIPTION"` help string, split.
type CmdHelp struct {
	Args        string
	Description string
}

// ParseCmdHelp splits the "ARGS | DESCRIPTION" convention used by the
// cmd_help strings. A string with no "|" is treated as a bare description.
func ParseCmdHelp(s string) CmdHelp {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '|' {
			return CmdHelp{
				Args:        trimSpace(s[:i]),
				Description: trimSpace(s[i+1:]),
			}
		}
	}
	return CmdHelp{Description: trimSpace(s)}
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' }

// Descriptor is the metadata half of a module: its identity, its
// declared commands, priority and flags. Modules provide one via
// Module.Descriptor().
type Descriptor struct {
	Name        string
	Description string
	// Commands is an ordered sequence of whitespace-separated alias
	// lists; the index into this slice is the cmd_id passed to OnCmd.
	Commands []string
	CmdHelp  []string
	HelpURL  string
	Priority int64
	Flags    Flags
}

// Validate enforces the invariants every installed Descriptor must hold.
func (d Descriptor) Validate() error {
	if d.Name == "" || !namePattern.MatchString(d.Name) {
		return fmt.Errorf("invalid module name %q: must match [A-Za-z0-9_-]+", d.Name)
	}
	if len(d.Commands) > 0 && len(d.CmdHelp) > 0 && len(d.CmdHelp) != len(d.Commands) {
		return fmt.Errorf("module %q: cmd_help length %d != commands length %d", d.Name, len(d.CmdHelp), len(d.Commands))
	}
	return nil
}

func (d Descriptor) Is(f Flags) bool { return d.Flags&f != 0 }

// Record is the core-owned bookkeeping wrapper around a loaded Module:
// its descriptor, its data file path, the mtime tokens used by the
// watcher, and its load order and artifact timestamp.
type Record struct {
	Module Module

	DataFile      string
	expectedMtime time.Time
	lastKnownMod  time.Time

	// LoadedAt records when the module was installed; Seq records
	// insertion order and is what Snapshot uses to break priority ties.
	LoadedAt  time.Time
	Seq       uint64
	ArtifactTS time.Time
}

func (r *Record) Descriptor() Descriptor { return r.Module.Descriptor() }
