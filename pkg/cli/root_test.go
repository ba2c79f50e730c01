package cli

import "testing"

func TestRootCommandHasSubcommands(t *testing.T) {
	root := NewRootCommand()

	names := map[string]bool{}
	for _, c := range root.cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "version"} {
		if !names[want] {
			t.Errorf("missing subcommand %q", want)
		}
	}
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3", "2026-08-30", "abc123")
	if cliVersion != "1.2.3" || cliBuildDate != "2026-08-30" || cliGitCommit != "abc123" {
		t.Errorf("version metadata not recorded: %s %s %s", cliVersion, cliBuildDate, cliGitCommit)
	}
}
