package main

import "testing"

func TestRootCmdHasSubcommands(t *testing.T) {
	root := buildRootCmd()
	for _, name := range []string{"serve", "migrate", "status"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("missing subcommand %q: %v", name, err)
		}
	}
	if root.Version == "" {
		t.Error("version not set")
	}
}
